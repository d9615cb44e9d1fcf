package jobqueue

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
)

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafkax.Message) error
}

// KafkaSink publishes dead jobs to a topic so they surface outside Redis.
type KafkaSink struct {
	pub   Publisher
	topic string
}

func NewKafkaSink(pub Publisher, topic string) *KafkaSink {
	return &KafkaSink{pub: pub, topic: topic}
}

func (s *KafkaSink) DeadLetter(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, kafkax.Message{
		Key:   job.ID,
		Value: body,
		Meta:  kafkax.EventMeta{EventID: job.ID, EventType: s.topic},
	})
}
