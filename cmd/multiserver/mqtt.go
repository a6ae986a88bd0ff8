// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/tve/pigate/board"
)

// mq is a handle onto a MQTT broker connection. It isolates the gateway code from the paho
// client: payloads are JSON encoded on the way out and handed over raw on the way in.
type mq struct {
	conn   mqtt.Client
	subsMu sync.Mutex
	subs   map[string]mqtt.MessageHandler // subscriptions to renew after a reconnect
}

// newMQ connects to a broker and returns a new mq object. The connection is persistent, i.e.,
// re-establishes itself if there is a disconnect. Subscriptions also get renewed after a reconnect.
func newMQ(conf board.MQTTConfig) (*mq, error) {
	id := conf.ClientID
	if id == "" {
		hostname, _ := os.Hostname()
		id = "pigate-" + hostname
	}
	mqtt.ERROR = log.New(os.Stderr, "MQTT ", 0)

	mq := &mq{subs: make(map[string]mqtt.MessageHandler)}
	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(id).
		SetUsername(conf.User).
		SetPassword(conf.Password).
		SetAutoReconnect(true).
		SetOnConnectHandler(mq.resubscribe)
	mq.conn = mqtt.NewClient(opts)

	token := mq.conn.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.Errorf("timeout connecting to %s", conf.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "cannot connect to %s", conf.Broker)
	}
	log.Printf("MQTT connected to %s as %s", conf.Broker, id)
	return mq, nil
}

// Publish JSON encodes the payload and publishes it without waiting for the broker.
func (mq *mq) Publish(topic string, payload interface{}) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "cannot encode message for %s", topic)
	}
	mq.conn.Publish(topic, 1, false, jsonPayload)
	return nil
}

// Subscribe subscribes to a topic, the handler gets the raw payload of each message.
func (mq *mq) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	h := func(c mqtt.Client, m mqtt.Message) { handler(m.Topic(), m.Payload()) }
	mq.subsMu.Lock()
	mq.subs[topic] = h
	mq.subsMu.Unlock()

	token := mq.conn.Subscribe(topic, 1, h)
	if !token.WaitTimeout(2 * time.Second) {
		return errors.Errorf("timeout subscribing to %s", topic)
	}
	return errors.Wrapf(token.Error(), "cannot subscribe to %s", topic)
}

// resubscribe renews all the subscriptions after a (re)connect.
func (mq *mq) resubscribe(c mqtt.Client) {
	mq.subsMu.Lock()
	defer mq.subsMu.Unlock()
	for topic, h := range mq.subs {
		c.Subscribe(topic, 1, h)
	}
}

// Close disconnects from the broker, giving in-flight messages a moment to go out.
func (mq *mq) Close() {
	mq.conn.Disconnect(250)
}
