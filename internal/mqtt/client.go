package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/berfenger/zeroexport2mqtt/internal/config"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	QOS_AT_MOST_ONCE  byte = 0
	QOS_AT_LEAST_ONCE byte = 1
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(clientID(cfg.MQTT.ClientIdPrefix))
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	// reconnects are driven by the actor supervisor
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	return opts
}

func CreateMQTTClient(opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client: mqtt.NewClient(opts),
	}
}

type MQTTClient struct {
	client mqtt.Client
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

// Connect retries with exponential backoff until connected or maxElapsed
// has passed. Each attempt waits at most timeout.
func (c *MQTTClient) Connect(continuation func(error), timeout, maxElapsed time.Duration) {
	go func() {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = maxElapsed
		err := backoff.Retry(func() error {
			token := c.client.Connect()
			if !token.WaitTimeout(timeout) {
				return errors.New("MQTT connect timed out")
			}
			return token.Error()
		}, bo)
		continuation(err)
	}()
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func clientID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, rand.Intn(1000), rand.Intn(1000))
}
