package kafka

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"ms-pettag/internal/logger"

	"github.com/segmentio/kafka-go"
)

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCompleted = "order.completed"
	TopicOrderCancelled = "order.cancelled"
	TopicPaymentNotice  = "payment.notified"
	TopicQRLinked       = "qr.linked"
	TopicQRScanned      = "qr.scanned"
)

// Topics returns every topic name the service publishes to under prefix.
func Topics(prefix string) []string {
	base := []string{
		TopicOrderCreated, TopicOrderCompleted, TopicOrderCancelled,
		TopicPaymentNotice, TopicQRLinked, TopicQRScanned,
	}
	out := make([]string, len(base))
	for i, t := range base {
		out[i] = topicName(prefix, t)
	}
	return out
}

func topicName(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// EnsureTopicsExist creates missing topics through the cluster controller.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	var failed []string
	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("CREATE", topic, "topic created")
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.Debug("KAFKA", fmt.Sprintf("topic %s already exists", topic))
		default:
			log.Error("KAFKA", fmt.Sprintf("create topic %s: %v", topic, err))
			failed = append(failed, topic)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not create topics %v", failed)
	}
	return nil
}
