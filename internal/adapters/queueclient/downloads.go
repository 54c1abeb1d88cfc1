package queueclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"tg-download-bot/internal/domain"
)

type taskRequest struct {
	TaskID domain.TaskID `json:"task_id"`
}

// InitDownload ставит задачу в очередь. Вызов не повторяется.
func (c *Client) InitDownload(ctx context.Context, req domain.DownloadRequest) (domain.TaskID, error) {
	data, err := c.do(ctx, "download_new", "POST", "download/new", req)
	if err != nil {
		return "", c.userError("download_new", err)
	}
	id, err := parseTaskID(data)
	if err != nil {
		c.log.Error().Err(err).Str("body", string(data)).Msg("неожиданный ответ download/new")
		return "", &RemoteError{Status: 200, Message: "Сервер загрузки вернул некорректный ответ"}
	}
	return id, nil
}

// CancelDownload отменяет задачу. Вызов не повторяется.
func (c *Client) CancelDownload(ctx context.Context, taskID domain.TaskID) (domain.CancelResult, error) {
	data, err := c.do(ctx, "download_cancel", "POST", "download/cancel", taskRequest{TaskID: taskID})
	if err != nil {
		return domain.CancelResult{}, c.userError("download_cancel", err)
	}
	var res domain.CancelResult
	if err := json.Unmarshal(data, &res); err != nil {
		return domain.CancelResult{}, &RemoteError{Status: 200, Message: "Сервер загрузки вернул некорректный ответ"}
	}
	return res, nil
}

// ClearDownloadFiles в фоне просит сервис удалить файлы задачи. Ошибки только логируются.
func (c *Client) ClearDownloadFiles(ctx context.Context, taskID domain.TaskID) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := c.clearFiles(ctx, taskID); err != nil {
			c.log.Warn().Err(err).Str("task", string(taskID)).Msg("не удалось очистить файлы задачи")
		}
	}()
}

func (c *Client) clearFiles(ctx context.Context, taskID domain.TaskID) error {
	return c.retry(ctx, func() error {
		_, err := c.do(ctx, "download_clear", "POST", "download/clear", taskRequest{TaskID: taskID})
		return err
	})
}

func parseTaskID(data []byte) (domain.TaskID, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("invalid json")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.JSON {
		res = res.Get("task_id")
	}
	switch res.Type {
	case gjson.Number:
		return domain.TaskID(res.Raw), nil
	case gjson.String:
		if res.Str != "" {
			return domain.TaskID(res.Str), nil
		}
	}
	return "", fmt.Errorf("task id not found")
}

// userError превращает сбой транспорта в понятный пользователю текст.
func (c *Client) userError(op string, err error) error {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	c.log.Error().Err(err).Str("op", op).Msg("сбой связи с сервисом загрузки")
	return ErrConnection
}
