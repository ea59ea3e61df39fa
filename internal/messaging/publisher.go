package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"tale-server/internal/interfaces"
	"tale-server/internal/models"
)

// Compile-time check to ensure rabbitMQPublisher implements ClientUpdatePublisher
var _ interfaces.ClientUpdatePublisher = (*rabbitMQPublisher)(nil)

// publishChannel покрывает используемое подмножество *amqp.Channel.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type rabbitMQPublisher struct {
	channel   publishChannel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQClientUpdatePublisher открывает канал и объявляет очередь
// обновлений. Паблишер объявляет очередь сам, чтобы система не зависела
// от порядка запуска: параметры должны совпадать с консьюмером.
func NewRabbitMQClientUpdatePublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (interfaces.ClientUpdatePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("client update publisher: не удалось открыть канал: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("client update publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}

	return &rabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("ClientUpdatePublisher"),
	}, nil
}

// PublishSceneGenerated publishes a scene-generated event for the user.
func (p *rabbitMQPublisher) PublishSceneGenerated(ctx context.Context, userID uuid.UUID, scene *models.FinalScene) error {
	payload := ClientUpdatePayload{
		UserID:    userID.String(),
		EventType: EventTypeSceneGenerated,
		Passage:   scene.Passage,
		ImageURL:  scene.ImageURL,
		HasAudio:  scene.HasAudio(),
		Choices:   len(scene.Choices),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal client update payload: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(pubCtx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish client update", zap.Error(err), zap.String("userID", userID.String()))
		return fmt.Errorf("failed to publish client update: %w", err)
	}

	p.logger.Debug("Client update published", zap.String("userID", userID.String()), zap.String("eventType", payload.EventType))
	return nil
}
