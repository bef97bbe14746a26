package testhelpers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

type TestRabbitMQ struct {
	Container *rabbitmq.RabbitMQContainer
	AmqpURL   string
	HTTPURL   string
	Host      string
	Port      int
	Username  string
	Password  string
}

func NewTestRabbitMQ(t *testing.T) *TestRabbitMQ {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
		rabbitmq.WithAdminUsername("guest"),
		rabbitmq.WithAdminPassword("guest"),
	)
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %s", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get amqp url: %s", err)
	}

	httpURL, err := container.HttpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get management url: %s", err)
	}

	parsed, err := url.Parse(amqpURL)
	if err != nil {
		t.Fatalf("failed to parse amqp url: %s", err)
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		t.Fatalf("failed to parse amqp port: %s", err)
	}
	password, _ := parsed.User.Password()

	return &TestRabbitMQ{
		Container: container,
		AmqpURL:   amqpURL,
		HTTPURL:   httpURL,
		Host:      parsed.Hostname(),
		Port:      port,
		Username:  parsed.User.Username(),
		Password:  password,
	}
}

func (tr *TestRabbitMQ) Close() {
	if termErr := tr.Container.Terminate(context.Background()); termErr != nil {
		fmt.Printf("failed to terminate container: %v\n", termErr)
	}
}
