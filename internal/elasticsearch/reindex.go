package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTaskID is returned when the backend accepts a reindex without a task handle.
var ErrEmptyTaskID = errors.New("reindex accepted without a task id")

// TaskStatus is the progress of an asynchronous backend task.
type TaskStatus struct {
	Completed bool   `json:"completed"`
	Total     int64  `json:"total"`
	Created   int64  `json:"created"`
	Updated   int64  `json:"updated"`
	Deleted   int64  `json:"deleted"`
	Failures  int64  `json:"failures"`
	Error     string `json:"error,omitempty"`
}

// Processed is the number of documents written so far.
func (s TaskStatus) Processed() int64 {
	return s.Created + s.Updated + s.Deleted
}

// Reindex starts an asynchronous copy from source to dest and returns the task id.
func (c *Client) Reindex(ctx context.Context, source, dest string) (string, error) {
	reader, err := jsonBody(map[string]any{
		"source": map[string]any{"index": source},
		"dest":   map[string]any{"index": dest},
	})
	if err != nil {
		return "", err
	}

	var body struct {
		Task string `json:"task"`
	}
	res, err := c.es.Reindex(reader,
		c.es.Reindex.WithContext(ctx),
		c.es.Reindex.WithWaitForCompletion(false),
	)
	if err = decode(fmt.Sprintf("reindex %s -> %s", source, dest), res, err, &body); err != nil {
		return "", err
	}
	if body.Task == "" {
		return "", ErrEmptyTaskID
	}
	return body.Task, nil
}

type taskResponse struct {
	Completed bool `json:"completed"`
	Task      struct {
		Status struct {
			Total   int64 `json:"total"`
			Created int64 `json:"created"`
			Updated int64 `json:"updated"`
			Deleted int64 `json:"deleted"`
		} `json:"status"`
	} `json:"task"`
	Response *struct {
		Failures []json.RawMessage `json:"failures"`
	} `json:"response"`
	Error *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// GetTask returns the status of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskStatus, error) {
	var body taskResponse
	res, err := c.es.Tasks.Get(taskID, c.es.Tasks.Get.WithContext(ctx))
	if err = decode("get task "+taskID, res, err, &body); err != nil {
		return TaskStatus{}, err
	}

	status := TaskStatus{
		Completed: body.Completed,
		Total:     body.Task.Status.Total,
		Created:   body.Task.Status.Created,
		Updated:   body.Task.Status.Updated,
		Deleted:   body.Task.Status.Deleted,
	}
	if body.Response != nil {
		status.Failures = int64(len(body.Response.Failures))
	}
	if body.Error != nil {
		status.Error = strings.TrimSpace(body.Error.Type + ": " + body.Error.Reason)
	}
	return status, nil
}

// CancelTask asks the backend to cancel a running task.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	res, err := c.es.Tasks.Cancel(c.es.Tasks.Cancel.WithTaskID(taskID), c.es.Tasks.Cancel.WithContext(ctx))
	return decode("cancel task "+taskID, res, err, nil)
}
