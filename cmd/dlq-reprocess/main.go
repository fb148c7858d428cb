// Команда dlq-reprocess перечитывает dead-letter топик и возвращает события
// в исходные топики. По умолчанию работает в режиме dry-run: только печатает,
// что было бы переотправлено.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	eventType   string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

type deadLetter struct {
	envelope      kafka.Envelope
	originalTopic string
	reason        string
	partition     int32
	offset        int64
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg := readFlags()

	messages, err := collect(cfg)
	if err != nil {
		fail("collect dead-letter messages: %v", err)
	}
	if len(messages) == 0 {
		fmt.Println("dead-letter topic is empty, nothing to do")
		return
	}

	if !cfg.execute {
		for _, msg := range messages {
			fmt.Printf("would replay %s (%s) to %s, reason: %s\n",
				msg.envelope.EventID, msg.envelope.EventType, msg.originalTopic, msg.reason)
		}
		fmt.Printf("dry-run: %d message(s); pass -execute to replay\n", len(messages))
		return
	}

	replayed, err := replay(cfg, messages)
	if err != nil {
		fail("replay failed after %d message(s): %v", replayed, err)
	}
	fmt.Printf("replayed %d message(s)\n", replayed)
}

func readFlags() config {
	var (
		brokers     string
		eventType   string
		limit       int
		execute     bool
		idleTimeout time.Duration
	)

	flag.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (fallback: KAFKA_BROKERS)")
	flag.StringVar(&eventType, "event-type", "", "replay only this event type (empty=all)")
	flag.IntVar(&limit, "limit", defaultReplayLimit, "maximum messages to replay")
	flag.BoolVar(&execute, "execute", false, "actually replay (default is dry-run)")
	flag.DurationVar(&idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading after this period without messages")
	flag.Parse()

	if strings.TrimSpace(brokers) == "" {
		brokers = strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	}
	if brokers == "" {
		fail("KAFKA_BROKERS (or -brokers) is required")
	}

	return config{
		brokers:     strings.Split(brokers, ","),
		eventType:   eventType,
		limit:       limit,
		execute:     execute,
		idleTimeout: idleTimeout,
	}
}

// collect вычитывает dead-letter топик с начала до idle-таймаута или limit.
func collect(cfg config) ([]deadLetter, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(cfg.brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	defer consumer.Close()

	partitions, err := consumer.Partitions(kafka.TopicDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var collected []deadLetter
	for _, partition := range partitions {
		if len(collected) >= cfg.limit {
			break
		}

		messages, err := drainPartition(consumer, partition, cfg, cfg.limit-len(collected))
		if err != nil {
			return nil, err
		}
		collected = append(collected, messages...)
	}

	return collected, nil
}

func drainPartition(consumer sarama.Consumer, partition int32, cfg config, remaining int) ([]deadLetter, error) {
	pc, err := consumer.ConsumePartition(kafka.TopicDeadLetter, partition, sarama.OffsetOldest)
	if err != nil {
		return nil, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.Close()

	var messages []deadLetter
	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for len(messages) < remaining {
		select {
		case msg := <-pc.Messages():
			if msg == nil {
				return messages, nil
			}
			letter, ok := parseDeadLetter(msg)
			if !ok {
				continue
			}
			if cfg.eventType != "" && letter.envelope.EventType != cfg.eventType {
				continue
			}
			messages = append(messages, letter)

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(cfg.idleTimeout)
		case consumeErr := <-pc.Errors():
			return messages, fmt.Errorf("read partition %d: %w", partition, consumeErr.Err)
		case <-idle.C:
			return messages, nil
		}
	}

	return messages, nil
}

func parseDeadLetter(msg *sarama.ConsumerMessage) (deadLetter, bool) {
	var env kafka.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("skipping unparsable dead-letter message")
		return deadLetter{}, false
	}

	letter := deadLetter{
		envelope:  env,
		partition: msg.Partition,
		offset:    msg.Offset,
	}
	for _, header := range msg.Headers {
		switch string(header.Key) {
		case kafka.HeaderOriginalTopic:
			letter.originalTopic = string(header.Value)
		case kafka.HeaderErrorMessage:
			letter.reason = string(header.Value)
		}
	}

	if letter.originalTopic == "" {
		log.WithField("event_id", env.EventID).Warn("dead-letter message without original topic header, skipping")
		return deadLetter{}, false
	}
	return letter, true
}

// replay возвращает события в исходные топики со сброшенным retry_count.
func replay(cfg config, messages []deadLetter) (int, error) {
	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		return 0, fmt.Errorf("create producer: %w", err)
	}
	defer producer.Close()

	for n, msg := range messages {
		env := msg.envelope
		env.RetryCount = 0

		// Исходный ключ партиционирования в dead-letter не сохраняется,
		// поэтому переотправка идёт с ключом event_id.
		if err := producer.PublishEnvelope(msg.originalTopic, env.EventID, env); err != nil {
			return n, err
		}

		log.WithFields(log.Fields{
			"event_id":   env.EventID,
			"event_type": env.EventType,
			"topic":      msg.originalTopic,
		}).Info("replayed dead-letter message")
	}

	return len(messages), nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
