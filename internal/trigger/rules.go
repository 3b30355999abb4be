package trigger

import (
	"fmt"

	"github.com/NordCoder/Taskboard/internal/domain/notification"
	"github.com/NordCoder/Taskboard/internal/domain/task"
)

const (
	ruleAssigned  = "assigned"
	ruleCompleted = "completed"
	ruleDeadline  = "deadline"
)

// Evaluate decides which notifications a task mutation performed by actor
// warrants. It has no side effects.
func Evaluate(m task.Mutation, actor string) []notification.Notification {
	var out []notification.Notification

	if next := deref(m.NextAssignee); next != "" && next != actor {
		changed := m.Created || next != deref(m.PrevAssignee)
		if changed {
			out = append(out, draft(m, actor, ruleAssigned, next, notification.TypeTaskAssigned,
				fmt.Sprintf("You have been assigned to task %q", m.Title)))
		}
	}

	if !m.Created && m.NextStatus == task.StatusDone && m.PrevStatus != task.StatusDone {
		if m.Creator != "" && m.Creator != actor {
			out = append(out, draft(m, actor, ruleCompleted, m.Creator, notification.TypeTaskCompleted,
				fmt.Sprintf("Task %q has been completed", m.Title)))
		}
	}

	return out
}

// DeadlineReminder builds the deadline_approaching notice for a task that is
// due soon.
func DeadlineReminder(d task.Due) notification.Notification {
	taskID := d.TaskID
	return notification.Notification{
		Recipient:      d.Assignee,
		Type:           notification.TypeDeadlineApproaching,
		Message:        fmt.Sprintf("Task %q is due %s", d.Title, d.Deadline.UTC().Format("2006-01-02 15:04 MST")),
		RelatedTask:    &taskID,
		RelatedProject: d.Project,
		DedupeKey:      fmt.Sprintf("%s:%s:%d", ruleDeadline, d.TaskID, d.Deadline.Unix()),
	}
}

func draft(m task.Mutation, actor, rule, recipient string, typ notification.Type, msg string) notification.Notification {
	taskID := m.TaskID
	n := notification.Notification{
		Recipient:      recipient,
		Type:           typ,
		Message:        msg,
		RelatedTask:    &taskID,
		RelatedProject: m.Project,
	}
	if actor != "" {
		sender := actor
		n.Sender = &sender
	}
	if m.ID != "" {
		n.DedupeKey = fmt.Sprintf("%s:%s:%s", rule, m.ID, recipient)
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
