package trigger

import (
	"testing"
	"time"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		m     task.Mutation
		actor string
		want  map[string]notification.Type
	}{
		{
			name:  "create assigned to someone else",
			m:     task.Mutation{ID: "m1", TaskID: "t1", Title: "Write spec", Created: true, NextAssignee: ptr("U"), NextStatus: task.StatusTodo, Creator: "A"},
			actor: "A",
			want:  map[string]notification.Type{"U": notification.TypeTaskAssigned},
		},
		{
			name:  "create assigned to self",
			m:     task.Mutation{ID: "m1", TaskID: "t1", Created: true, NextAssignee: ptr("A"), Creator: "A"},
			actor: "A",
		},
		{
			name:  "create unassigned",
			m:     task.Mutation{ID: "m1", TaskID: "t1", Created: true, Creator: "A"},
			actor: "A",
		},
		{
			name:  "create already done does not complete",
			m:     task.Mutation{ID: "m1", TaskID: "t1", Created: true, NextStatus: task.StatusDone, Creator: "C"},
			actor: "A",
		},
		{
			name:  "reassign U to V",
			m:     task.Mutation{ID: "m2", TaskID: "t1", PrevAssignee: ptr("U"), NextAssignee: ptr("V"), Creator: "C"},
			actor: "A",
			want:  map[string]notification.Type{"V": notification.TypeTaskAssigned},
		},
		{
			name:  "reassign to same value",
			m:     task.Mutation{ID: "m2", TaskID: "t1", PrevAssignee: ptr("U"), NextAssignee: ptr("U"), Creator: "C"},
			actor: "A",
		},
		{
			name:  "reassign to actor",
			m:     task.Mutation{ID: "m2", TaskID: "t1", PrevAssignee: ptr("U"), NextAssignee: ptr("A"), Creator: "C"},
			actor: "A",
		},
		{
			name:  "unassign",
			m:     task.Mutation{ID: "m2", TaskID: "t1", PrevAssignee: ptr("U"), Creator: "C"},
			actor: "A",
		},
		{
			name:  "assign previously unassigned",
			m:     task.Mutation{ID: "m2", TaskID: "t1", NextAssignee: ptr("V"), Creator: "C"},
			actor: "A",
			want:  map[string]notification.Type{"V": notification.TypeTaskAssigned},
		},
		{
			name:  "complete by other",
			m:     task.Mutation{ID: "m3", TaskID: "t1", PrevStatus: task.StatusInProgress, NextStatus: task.StatusDone, Creator: "C"},
			actor: "A",
			want:  map[string]notification.Type{"C": notification.TypeTaskCompleted},
		},
		{
			name:  "complete by creator",
			m:     task.Mutation{ID: "m3", TaskID: "t1", PrevStatus: task.StatusTodo, NextStatus: task.StatusDone, Creator: "C"},
			actor: "C",
		},
		{
			name:  "already done",
			m:     task.Mutation{ID: "m3", TaskID: "t1", PrevStatus: task.StatusDone, NextStatus: task.StatusDone, Creator: "C"},
			actor: "A",
		},
		{
			name:  "unknown creator",
			m:     task.Mutation{ID: "m3", TaskID: "t1", PrevStatus: task.StatusTodo, NextStatus: task.StatusDone},
			actor: "A",
		},
		{
			name:  "reassign and complete at once",
			m:     task.Mutation{ID: "m4", TaskID: "t1", PrevAssignee: ptr("U"), NextAssignee: ptr("V"), PrevStatus: task.StatusTodo, NextStatus: task.StatusDone, Creator: "C"},
			actor: "A",
			want:  map[string]notification.Type{"V": notification.TypeTaskAssigned, "C": notification.TypeTaskCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.m, tt.actor)
			require.Len(t, got, len(tt.want))
			for _, n := range got {
				assert.Equal(t, tt.want[n.Recipient], n.Type)
				require.NotNil(t, n.RelatedTask)
				assert.Equal(t, tt.m.TaskID, *n.RelatedTask)
				require.NotNil(t, n.Sender)
				assert.Equal(t, tt.actor, *n.Sender)
				assert.False(t, n.Read)
				assert.NotEmpty(t, n.DedupeKey)
				assert.NoError(t, n.Validate())
			}
		})
	}
}

func TestEvaluate_DedupeKeysDifferPerMutation(t *testing.T) {
	first := Evaluate(task.Mutation{ID: "m1", TaskID: "t1", Created: true, NextAssignee: ptr("U")}, "A")
	second := Evaluate(task.Mutation{ID: "m2", TaskID: "t1", PrevAssignee: ptr("V"), NextAssignee: ptr("U")}, "A")
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].DedupeKey, second[0].DedupeKey)
}

func TestDeadlineReminder(t *testing.T) {
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	n := DeadlineReminder(task.Due{TaskID: "t1", Title: "Ship", Assignee: "U", Deadline: due, Project: ptr("p1")})

	assert.Equal(t, "U", n.Recipient)
	assert.Equal(t, notification.TypeDeadlineApproaching, n.Type)
	assert.Contains(t, n.Message, "Ship")
	assert.Equal(t, "p1", *n.RelatedProject)
	assert.NoError(t, n.Validate())
}
