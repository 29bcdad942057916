package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/datanex/staycohort/internal/shared/config"
)

// Bus publishes events to KurrentDB
type Bus struct {
	client *esdb.Client
	prefix string
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(cfg config.KurrentDBConfig) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	return &Bus{
		client: client,
		prefix: "staycohort",
	}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// StreamName maps an event type to its stream: cohort.run.completed ->
// staycohort-cohort-run-completed
func StreamName(prefix, eventType string) string {
	return prefix + "-" + strings.ReplaceAll(eventType, ".", "-")
}

// Publish appends the event to its type stream
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, StreamName(b.prefix, event.Type), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the KurrentDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
