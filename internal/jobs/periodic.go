package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/phrazzld/lingua-api/internal/config"
	"github.com/phrazzld/lingua-api/internal/task"
)

// PeriodicTasks converts configured schedules into periodic tasks,
// validating each against resolver so a bad entry fails at startup.
func PeriodicTasks(resolver task.Resolver, entries []config.PeriodicTaskConfig) ([]task.PeriodicTask, error) {
	tasks := make([]task.PeriodicTask, 0, len(entries))
	for _, entry := range entries {
		var payload json.RawMessage
		if len(entry.Payload) > 0 {
			raw, err := json.Marshal(entry.Payload)
			if err != nil {
				return nil, fmt.Errorf("failed to encode payload of periodic task %q: %w", entry.Name, err)
			}
			payload = raw
		}

		p := task.PeriodicTask{Name: entry.Name, Schedule: entry.Schedule, Payload: payload}
		if err := p.Validate(resolver); err != nil {
			return nil, err
		}
		tasks = append(tasks, p)
	}
	return tasks, nil
}
