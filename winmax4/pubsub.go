package winmax4

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/controlink-dev/winmax4-sync/config"
	"github.com/gin-gonic/gin"
)

// DispatchSyncRun hands a queued run to the worker path: Pub/Sub when a
// project is configured, otherwise an in-process goroutine. Either way the
// caller returns immediately.
func DispatchSyncRun(ctx context.Context, payload SyncPubSubPayload) {
	if config.PubSubConfigured() {
		if err := PublishSyncRun(ctx, payload); err == nil {
			return
		} else {
			config.LogError(config.GetLogger(), "winmax4", "DispatchSyncRun", "publish sync run", payload, err)
		}
	}

	bctx := context.WithoutCancel(ctx)
	go func() {
		if err := ExecuteRun(bctx, payload); err != nil {
			config.LogError(config.GetLogger(), "winmax4", "DispatchSyncRun", "execute sync run", payload, err)
		}
	}()
}

func PublishSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	topicName := strings.TrimSpace(os.Getenv("WINMAX4_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "winmax4-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("WINMAX4_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler consumes push-subscription deliveries. Always 204: a
// retryable failure is re-queued as a fresh run rather than re-delivered.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_WINMAX4_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.LicenseId == "" {
			c.Status(204)
			return
		}

		_ = ExecuteRun(c.Request.Context(), payload)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
