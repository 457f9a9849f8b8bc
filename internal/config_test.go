package internal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_UnmarshalJSON(t *testing.T) {
	t.Run("success - unmarshal json works as expected", func(t *testing.T) {
		// arrange
		jsonInput := []byte(`{"runner_slots": 4, "queue_size": 4, "cache_capacity_mb": 128}`)
		var config Configuration

		// act
		err := json.Unmarshal(jsonInput, &config)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, int64(4), config.RunnerSlots)
		assert.Equal(t, int64(128), config.CacheCapacityMB)
	})
}

func TestConfig_MarshalJSON(t *testing.T) {
	t.Run("success - marshal json works as expected", func(t *testing.T) {
		// arrange
		config := Configuration{
			RunnerSlots:     2,
			QueueSize:       5,
			CacheCapacityMB: 512,
			ProbeRetries:    5,
			ProbeIntervalS:  10,
		}

		// act
		b, err := json.Marshal(config)

		// assert
		assert.NoError(t, err)
		assert.Contains(t, string(b), `"runner_slots":2`)
		assert.Contains(t, string(b), `"queue_size":5`)
		assert.Contains(t, string(b), `"probe_retries":5`)
	})
}
