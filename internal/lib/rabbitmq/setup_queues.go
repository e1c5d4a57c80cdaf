package rabbitmq

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

const (
	// RoutingKeyExpiring — план истекает в ближайшие сутки.
	RoutingKeyExpiring = "plan.expiring"
	// RoutingKeyExpired — план деактивирован.
	RoutingKeyExpired = "plan.expired"
)

// GetNotificationQueues возвращает очереди уведомлений о планах.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.plan-expiring", RoutingKey: RoutingKeyExpiring},
		{QueueName: "notification.plan-expired", RoutingKey: RoutingKeyExpired},
	}
}
