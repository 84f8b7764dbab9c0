package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	c := &Client{projectID: "shop-prod"}

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"topic id", c.resourceName("orders", "topics"), "projects/shop-prod/topics/orders"},
		{"topic full", c.resourceName("projects/other/topics/orders", "topics"), "projects/other/topics/orders"},
		{"subscription id", c.resourceName(" order-emails ", "subscriptions"), "projects/shop-prod/subscriptions/order-emails"},
		{"empty", c.resourceName(" ", "subscriptions"), ""},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s: expected %q got %q", tc.name, tc.want, tc.got)
		}
	}

	var nilClient *Client
	if nilClient.resourceName("orders", "topics") != "" {
		t.Fatalf("nil client should yield empty name")
	}
}

func TestRequiredResourcesByRole(t *testing.T) {
	cfg := config.PubSubConfig{
		OrdersTopic:              "orders",
		BillingTopic:             "billing",
		NotificationSubscription: "order-emails",
	}

	pub, err := requiredResources(cfg, RolePublisher)
	if err != nil {
		t.Fatalf("publisher resources: %v", err)
	}
	if len(pub) != 2 || pub[0] != [2]string{"topics", "orders"} || pub[1] != [2]string{"topics", "billing"} {
		t.Fatalf("unexpected publisher resources %v", pub)
	}

	sub, err := requiredResources(cfg, RoleConsumer)
	if err != nil {
		t.Fatalf("consumer resources: %v", err)
	}
	if len(sub) != 1 || sub[0] != [2]string{"subscriptions", "order-emails"} {
		t.Fatalf("unexpected consumer resources %v", sub)
	}

	if _, err := requiredResources(config.PubSubConfig{OrdersTopic: "orders"}, RolePublisher); err == nil {
		t.Fatal("expected missing billing topic to fail")
	}
}

func TestClientOptions(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{ProjectID: "p"}); len(opts) != 0 {
		t.Fatalf("expected no options without credentials")
	}
	if opts := clientOptions(config.GCPConfig{ProjectID: "p", CredentialsJSON: `{"type":"service_account"}`}); len(opts) != 1 {
		t.Fatalf("expected credentials option")
	}
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if c.Publisher("orders") != nil || c.NotificationSubscription() != nil {
		t.Fatal("nil client must not hand out handles")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}
