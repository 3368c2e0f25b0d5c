package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const resetTimeout = 30 * time.Second

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete and recreate the topic",
	Long: `Reset tears the topic down and recreates it so a demo run starts
from a clean slate: no stale records, no committed offsets.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().String("bootstrap-servers", "localhost:9092,localhost:9094", "Comma-separated broker addresses")
	resetCmd.Flags().String("topic", "orders", "Topic to reset")
	resetCmd.Flags().Int32("partitions", 2, "Partition count for the recreated topic")
	resetCmd.Flags().Int16("replication-factor", 1, "Replication factor for the recreated topic")
}

func runReset(cmd *cobra.Command, args []string) error {
	bootstrapServers, _ := cmd.Flags().GetString("bootstrap-servers")
	topic, _ := cmd.Flags().GetString("topic")
	partitions, _ := cmd.Flags().GetInt32("partitions")
	replicationFactor, _ := cmd.Flags().GetInt16("replication-factor")

	cl, err := kgo.NewClient(kgo.SeedBrokers(strings.Split(bootstrapServers, ",")...))
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer cl.Close()
	adm := kadm.NewClient(cl)

	ctx, cancel := context.WithTimeout(cmd.Context(), resetTimeout)
	defer cancel()

	delResps, err := adm.DeleteTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to delete topic %s: %w", topic, err)
	}
	for _, resp := range delResps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.UnknownTopicOrPartition) {
			return fmt.Errorf("failed to delete topic %s: %w", topic, resp.Err)
		}
	}

	// Topic deletion completes asynchronously on the broker; recreate with
	// a short retry instead of failing on the first collision.
	deadline := time.Now().Add(resetTimeout)
	for {
		createResps, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		var pendingDelete bool
		for _, resp := range createResps {
			if resp.Err == nil {
				continue
			}
			if errors.Is(resp.Err, kerr.TopicAlreadyExists) && time.Now().Before(deadline) {
				pendingDelete = true
				continue
			}
			return fmt.Errorf("failed to create topic %s: %w", topic, resp.Err)
		}
		if !pendingDelete {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Printf("topic %s reset: partitions=%d replication_factor=%d\n", topic, partitions, replicationFactor)
	return nil
}
