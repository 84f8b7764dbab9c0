package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Role selects which resources a process must find before it starts.
type Role int

const (
	// RolePublisher needs the order and billing topics.
	RolePublisher Role = iota
	// RoleConsumer needs the notification subscription.
	RoleConsumer
)

func (r Role) String() string {
	if r == RoleConsumer {
		return "consumer"
	}
	return "publisher"
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client for one storefront process.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
}

// NewClient dials Pub/Sub and fails fast when a resource the role depends
// on is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"role":       role.String(),
		}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return nil
}

// requiredResources lists kind/name pairs the role must see.
func requiredResources(cfg config.PubSubConfig, role Role) ([][2]string, error) {
	var out [][2]string
	add := func(kind, name, env string) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%s is required for the %s role", env, role)
		}
		out = append(out, [2]string{kind, name})
		return nil
	}
	switch role {
	case RoleConsumer:
		if err := add("subscriptions", cfg.NotificationSubscription, "STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION"); err != nil {
			return nil, err
		}
	default:
		if err := add("topics", cfg.OrdersTopic, "STOREFRONT_PUBSUB_ORDERS_TOPIC"); err != nil {
			return nil, err
		}
		if err := add("topics", cfg.BillingTopic, "STOREFRONT_PUBSUB_BILLING_TOPIC"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Ping confirms every resource the role depends on still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	resources, err := requiredResources(c.cfg, c.role)
	if err != nil {
		return err
	}
	for _, res := range resources {
		kind, name := res[0], res[1]
		full := c.resourceName(name, kind)
		if kind == "topics" {
			_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		} else {
			_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
		}
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(kind, "s"), full)
		}
		if err != nil {
			return fmt.Errorf("checking %s: %w", full, err)
		}
	}
	return nil
}

// NotificationSubscription returns the subscriber feeding order emails,
// capped at cfg.MaxOutstanding in-flight messages.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(c.cfg.NotificationSubscription, "subscriptions")
	if full == "" {
		return nil
	}
	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	return sub
}

// Publisher returns a handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.resourceName(name, "topics")
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands an ID to projects/<project>/<kind>/<id>. Names that
// already carry a project path are returned unchanged.
func (c *Client) resourceName(name, kind string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/"):
		return n
	case c.projectID == "":
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + n
}
