// Package client 调用运行中进程的控制面。
package client

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/ricardogal/defi-scalping-rebate/internal/reconcile"
)

type Client struct {
	client *resty.Client
}

// New addr 形如 127.0.0.1:8089，也可以带 http:// 前缀
func New(addr string) *Client {
	base := strings.TrimSuffix(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{client: resty.New().SetBaseURL(base).SetTimeout(35 * time.Second)}
}

// Reconcile 让运行中的进程做一次清理，返回它的统计
func (c *Client) Reconcile(ctx context.Context) (reconcile.Report, error) {
	var rep reconcile.Report
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&rep).
		Post("/api/reconcile")
	if err != nil {
		return rep, errors.Wrap(err, "control plane unreachable")
	}
	if !resp.IsSuccess() {
		return rep, errors.Errorf("control plane http %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	return rep, nil
}
