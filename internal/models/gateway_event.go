package models

import "time"

// GatewayEvent представляет сохранённое событие платёжного шлюза.
// Используется как журнал идемпотентности (повторная доставка события
// с тем же ID не меняет состояние) и как буфер для повторной обработки.
type GatewayEvent struct {
	EventID    string    // Идентификатор события на стороне шлюза
	Payload    []byte    // Исходное тело вебхука
	Processed  bool      // Признак успешной обработки
	ReceivedAt time.Time // Время получения
}
