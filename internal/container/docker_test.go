package container

import (
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestSummaryFromAPI(t *testing.T) {
	s := summaryFromAPI(types.Container{
		ID:      "abc",
		Names:   []string{"/run-7"},
		Image:   "jmeter:5",
		State:   "running",
		Status:  "Up 2 minutes",
		Created: 1700000000,
	})

	assert.Equal(t, ContainerID("abc"), s.ID)
	assert.Equal(t, "run-7", s.Name)
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), s.Created)
}

func TestEnvList_SortedKeyValuePairs(t *testing.T) {
	got := envList(map[string]string{"HEAP": "-Xmx1g", "BOOTSTRAP_SERVERS": "k:9092"})
	assert.Equal(t, []string{"BOOTSTRAP_SERVERS=k:9092", "HEAP=-Xmx1g"}, got)
}

func TestBind_String(t *testing.T) {
	assert.Equal(t, "/data/run:/test", Bind{Source: "/data/run", Target: MountPath}.String())
}
