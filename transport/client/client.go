package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/transport/api"
	"github.com/warden-shared/warden-engine/utils"
)

// Client worker 侧的节点协议客户端
type Client struct {
	base          string
	http          *resty.Client
	node          api.Node
	RecvOrderChan chan *api.Order
}

func New(masterAddress string, node api.Node) *Client {
	c := &Client{
		base:          "http://" + masterAddress + "/api/v1",
		http:          resty.New().SetTimeout(60 * time.Second),
		node:          node,
		RecvOrderChan: make(chan *api.Order, 100),
	}
	return c
}

func (c *Client) nodeKey() string {
	return utils.GetNodeKey(c.node.Name, c.node.Address)
}

func (c *Client) Register() error {
	resp, err := c.http.R().SetBody(c.node).Post(c.base + "/nodes")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("register failed: %s", resp.Status())
	}
	return nil
}

func (c *Client) Unregister() error {
	_, err := c.http.R().SetBody(c.node).Delete(c.base + "/nodes/" + c.nodeKey())
	return err
}

func (c *Client) Ping() error {
	_, err := c.http.R().SetBody(c.node).Put(c.base + "/nodes/" + c.nodeKey() + "/ping")
	return err
}

// StartPolling 持续长轮询 work 端点，取到的指令进 RecvOrderChan
func (c *Client) StartPolling() {
	go func() {
		for {
			var order api.Order
			resp, err := c.http.R().SetResult(&order).Get(c.base + "/nodes/" + c.nodeKey() + "/work")
			if err != nil {
				logger.Errorf("poll work failed: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if resp.StatusCode() == http.StatusNoContent {
				continue
			}
			if resp.StatusCode() != http.StatusOK {
				logger.Warnf("poll work unexpected status: %s", resp.Status())
				time.Sleep(5 * time.Second)
				continue
			}
			c.RecvOrderChan <- &order
		}
	}()
}

func (c *Client) Ack(orderType api.OrderType, jobName string) error {
	body := struct {
		Node api.Node `json:"node"`
		Ack  api.Ack  `json:"ack"`
	}{
		Node: c.node,
		Ack:  api.Ack{OrderType: int(orderType), JobName: jobName},
	}
	_, err := c.http.R().SetBody(body).Post(c.base + "/nodes/" + c.nodeKey() + "/ack")
	return err
}

func (c *Client) PushStatus(name string, id int, status int) error {
	report := api.StatusReport{Name: name, RunId: id, Status: status}
	_, err := c.http.R().SetBody(report).Put(fmt.Sprintf("%s/runs/%s/%d/status", c.base, name, id))
	return err
}

func (c *Client) PushLog(name string, id int, content string) error {
	_, err := c.http.R().SetBody(content).Put(fmt.Sprintf("%s/runs/%s/%d/log", c.base, name, id))
	return err
}

func (c *Client) UploadArtifact(name string, id int, artifactName, filePath string) error {
	resp, err := c.http.R().
		SetFile("file", filePath).
		Post(fmt.Sprintf("%s/runs/%s/%d/artifacts/%s", c.base, name, id, artifactName))
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("upload artifact failed: %s", resp.Status())
	}
	return nil
}
