// Package notify передаёт уведомления внешнему почтовому сервису.
package notify

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TemplateUserVerification = "user_verification"
	TemplateBidAccepted      = "bid_accepted"
	TemplateBidRejected      = "bid_rejected"
	TemplatePostReviewed     = "task_post_reviewed"
)

// Message - запрос на отправку письма по шаблону
type Message struct {
	ID        string            `json:"id"`
	Recipient string            `json:"recipient"`
	Template  string            `json:"template"`
	Values    map[string]string `json:"values"`
	CreatedAt time.Time         `json:"createdAt"`
}

func NewMessage(recipient, template string, values map[string]string) Message {
	return Message{
		ID:        uuid.New().String(),
		Recipient: recipient,
		Template:  template,
		Values:    values,
		CreatedAt: time.Now().UTC(),
	}
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Dispatch публикует сообщение; ключ - адрес получателя, чтобы письма одному адресату шли по порядку
func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Recipient),
		Value: payload,
		Time:  msg.CreatedAt,
	})
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// LogDispatcher только пишет уведомление в лог, когда брокер не настроен
type LogDispatcher struct {
	Logger *log.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.Logger.Printf("notification %s to %s: %s %v", msg.ID, msg.Recipient, msg.Template, msg.Values)
	return nil
}

const dispatchTimeout = 10 * time.Second

// Background отправляет уведомления в фоне и при остановке дожидается начатых отправок
type Background struct {
	logger *log.Logger
	d      Dispatcher
	wg     sync.WaitGroup
}

func NewBackground(logger *log.Logger, d Dispatcher) *Background {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Background{logger: logger, d: d}
}

// Send отправляет сообщение в фоне. Ошибка отправки логируется и не возвращается.
func (b *Background) Send(msg Message) {
	if b.d == nil || msg.Recipient == "" {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := b.d.Dispatch(ctx, msg); err != nil {
			b.logger.Printf("failed to send %s notification to %s: %v", msg.Template, msg.Recipient, err)
		}
	}()
}

// Drain ждёт завершения фоновых отправок, но не дольше ctx
func (b *Background) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
