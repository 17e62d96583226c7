package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StatusPublisher определяет интерфейс для публикации событий о статусе дня.
type StatusPublisher interface {
	// Publish отправляет событие в очередь статусов.
	Publish(ctx context.Context, event DailyStatusEvent) error
}

// rabbitMQStatusPublisher реализует StatusPublisher поверх RabbitMQ.
type rabbitMQStatusPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQStatusPublisher создает новый StatusPublisher.
// Важно: канал должен быть уже открыт и закрывается вызывающей стороной.
func NewRabbitMQStatusPublisher(ch *amqp.Channel, queueName string, logger *zap.Logger) (StatusPublisher, error) {
	// Объявляем очередь событий (делаем ее durable)
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		return nil, fmt.Errorf("не удалось объявить очередь статусов '%s': %w", queueName, err)
	}

	return &rabbitMQStatusPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("StatusPublisher"),
	}, nil
}

// Publish публикует событие статуса в очередь RabbitMQ.
func (p *rabbitMQStatusPublisher) Publish(ctx context.Context, event DailyStatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события статуса (owner %s, day %d): %w", event.OwnerID, event.Day, err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "challenge-server",
			MessageId:    uuid.NewString(),
		},
	)
	if err != nil {
		p.logger.Error("Ошибка публикации события статуса",
			zap.String("ownerID", event.OwnerID),
			zap.Int("day", event.Day),
			zap.Error(err))
		return fmt.Errorf("ошибка публикации события статуса (owner %s, day %d): %w", event.OwnerID, event.Day, err)
	}

	p.logger.Debug("Событие статуса опубликовано",
		zap.String("queue", p.queueName),
		zap.String("ownerID", event.OwnerID),
		zap.Int("day", event.Day))
	return nil
}
