package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/authgate/jobs"
)

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskSessionPrune)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskSessionPrune, task.Type())

	_, err = BuildTask(jobs.TaskLoginAudit)
	assert.Error(t, err, "login audit needs a real login payload")
}

func TestNilCLIReportsMisconfiguration(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskSessionPrune)
	assert.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	assert.Error(t, err)
}

func TestQueueStatsString(t *testing.T) {
	s := QueueStats{Queue: "default", Pending: 2, Retry: 1}
	assert.Equal(t, "queue=default pending=2 active=0 scheduled=0 retry=1", s.String())
}
