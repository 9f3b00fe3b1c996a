// Package mq — транспорт событий run.pending между процессами Playroom.
//
// Структура:
//   - connection.go — соединение с RabbitMQ и переподключение
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация событий
//   - consumer.go   — потребление с ack/nack
//
// Оркестратор публикует run.pending при trigger и сам же его потребляет.
// Без RabbitMQ оркестратор работает только через polling.
package mq
