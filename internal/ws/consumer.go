package ws

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tale-server/internal/messaging"
	"tale-server/internal/utils"
)

// Consumer отвечает за получение обновлений сцен из RabbitMQ и их
// доставку подключенным клиентам.
type Consumer struct {
	conn        *amqp.Connection
	manager     *ConnectionManager
	queueName   string
	stopChannel chan struct{} // Канал для остановки консьюмера
	logger      zerolog.Logger
}

// NewConsumer создает нового консьюмера RabbitMQ.
func NewConsumer(conn *amqp.Connection, manager *ConnectionManager, queueName string, logger zerolog.Logger) *Consumer {
	return &Consumer{
		conn:        conn,
		manager:     manager,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
		logger:      logger.With().Str("component", "UpdateConsumer").Logger(),
	}
}

// StartConsuming начинает прослушивание очереди обновлений.
// Эта функция блокирующая, поэтому ее следует запускать в отдельной горутине.
func (c *Consumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	// Параметры должны совпадать с объявлением на стороне паблишера.
	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("не удалось объявить очередь '%s': %w", c.queueName, err)
	}

	// Обрабатываем по одному сообщению за раз.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("не удалось установить QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"tale-server-ws-consumer", // consumer tag
		false,                     // auto-ack (подтверждаем вручную)
		false,                     // exclusive
		false,                     // no-local
		false,                     // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать консьюмера: %w", err)
	}

	c.logger.Info().Str("queue", q.Name).Msg("Consumer started, waiting for scene updates")

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				c.logger.Info().Msg("RabbitMQ message channel closed")
				return nil
			}
			c.handleDelivery(d)

		case <-c.stopChannel:
			c.logger.Info().Msg("Consumer stop signal received")
			return nil
		}
	}
}

// handleDelivery разбирает обновление и отправляет его владельцу.
// Сообщение с неизвестными полями отклоняется: очередь общая, и
// расхождение схемы лучше увидеть сразу.
func (c *Consumer) handleDelivery(d amqp.Delivery) {
	var payload messaging.ClientUpdatePayload
	if err := utils.DecodeStrict(d.Body, &payload); err != nil {
		c.logger.Error().Err(err).Msg("Failed to decode client update payload, message dropped")
		_ = d.Nack(false, false)
		return
	}
	if payload.UserID == "" {
		c.logger.Error().Str("queue", c.queueName).Msg("Client update without user_id, message dropped")
		_ = d.Nack(false, false)
		return
	}

	if c.manager.SendToUser(payload.UserID, d.Body) {
		_ = d.Ack(false)
		return
	}

	// Пользователь оффлайн. Событие информационное, хранить его незачем.
	c.logger.Debug().Str("userID", payload.UserID).Msg("User offline, update discarded")
	_ = d.Ack(false)
}

// Stop останавливает консьюмер.
func (c *Consumer) Stop() {
	c.logger.Info().Msg("Stopping RabbitMQ consumer")
	close(c.stopChannel)
}
