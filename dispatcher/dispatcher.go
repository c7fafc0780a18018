package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/warden-shared/warden-engine/consts"
	"github.com/warden-shared/warden-engine/logger"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/transport/api"
	"github.com/warden-shared/warden-engine/utils"
)

type IDispatcher interface {
	// DispatchNode 按 runs-on 标签选择节点
	DispatchNode(runsOn string) (*model.Node, error)
	// Register 节点注册
	Register(node *model.Node) error
	// UnRegister 节点注销
	UnRegister(node *model.Node) error
	UnRegisterWithKey(key string) error
	// Ping 节点心跳
	Ping(node *model.Node) error
	// HealthcheckNodes 剔除心跳超时的节点
	HealthcheckNodes()
	// SendJob 构造发给节点的执行指令
	SendJob(name, yamlString string, jobRunID int, triggerMode string, node *model.Node) *api.Order
	// CancelJob 构造取消指令，发给最近执行该 run 的节点
	CancelJob(name string, jobRunID int) (*api.Order, *model.Node, error)
	CancelJobWithNode(name string, jobRunID int, node *model.Node) *api.Order
	// Received 记录节点的收到确认
	Received(info ReceivedInfo)
	IsReceived(info ReceivedInfo) bool
	// IsValidNode 判断有没有这个节点
	IsValidNode(n string) bool
}

type ReceivedInfo struct {
	OrderType int
	Node      string // name@address
	JobName   string
}

type HttpDispatcher struct {
	nodes       sync.Map // key: node.Name + "@" + node.Address, value: NodeInfo
	poller      *Poller  // 轮询器，用来选择节点
	mu          sync.Mutex
	JobNodeMap  sync.Map // key: jobname(id), value: []*node，记录 run 在哪些节点上执行过
	receivedMap sync.Map // key: ReceivedInfo, value: struct{}
}

type NodeInfo struct {
	node         *model.Node
	lastPingTime int64
}

// Poller 轮询器
type Poller struct {
	index   int64
	keyList []string
}

func NewHttpDispatcher() IDispatcher {
	return &HttpDispatcher{
		poller: &Poller{
			index:   0,
			keyList: make([]string, 0),
		},
	}
}

// DispatchNode 从匹配 runs-on 标签的节点中轮询选择
func (d *HttpDispatcher) DispatchNode(runsOn string) (*model.Node, error) {
	d.mu.Lock()
	if len(d.poller.keyList) == 0 {
		d.mu.Unlock()
		return nil, errors.New("no node available, len key list is 0")
	}
	attempts := len(d.poller.keyList)
	var key string
	for i := 0; i < attempts; i++ {
		key = d.poller.keyList[d.poller.index]
		d.poller.index = (d.poller.index + 1) % int64(len(d.poller.keyList))
		value, ok := d.nodes.Load(key)
		if !ok {
			continue
		}
		node := value.(NodeInfo).node
		if nodeMatches(node, runsOn) {
			d.mu.Unlock()
			return node, nil
		}
	}
	d.mu.Unlock()
	logger.Errorf("DispatchNode failed, no node matches runs-on %q", runsOn)
	return nil, fmt.Errorf("no node available for runs-on %q", runsOn)
}

// 空选择器等同 hosted 池
func nodeMatches(node *model.Node, runsOn string) bool {
	if runsOn == "" {
		runsOn = consts.NODE_LABEL_HOSTED
	}
	for _, label := range strings.Fields(strings.ReplaceAll(runsOn, ",", " ")) {
		if !node.HasLabel(label) {
			return false
		}
	}
	return true
}

// Register 节点注册
func (d *HttpDispatcher) Register(node *model.Node) error {
	key := utils.GetNodeKey(node.Name, node.Address)
	if _, ok := d.nodes.Load(key); !ok {
		d.nodes.Store(key, NodeInfo{
			node:         node,
			lastPingTime: time.Now().Unix(),
		})
		d.mu.Lock()
		d.poller.keyList = append(d.poller.keyList, key)
		d.mu.Unlock()
		logger.Tracef("Register node: %s, now have %d nodes", key, len(d.poller.keyList))
		return nil
	}
	logger.Tracef("Register node failed, node already exists: %s", key)
	return errors.New("node already exists")
}

// UnRegister 节点注销
func (d *HttpDispatcher) UnRegister(node *model.Node) error {
	key := utils.GetNodeKey(node.Name, node.Address)
	return d.unRegister(key)
}

func (d *HttpDispatcher) UnRegisterWithKey(key string) error {
	return d.unRegister(key)
}

func (d *HttpDispatcher) unRegister(key string) error {
	if _, ok := d.nodes.Load(key); ok {
		d.nodes.Delete(key)
		d.mu.Lock()
		for i, k := range d.poller.keyList {
			if k == key {
				d.poller.keyList = append(d.poller.keyList[:i], d.poller.keyList[i+1:]...)
				break
			}
		}
		if len(d.poller.keyList) > 0 {
			d.poller.index = d.poller.index % int64(len(d.poller.keyList))
		} else {
			d.poller.index = 0
		}
		d.mu.Unlock()
		logger.Tracef("UnRegister node: %s", key)
		return nil
	}
	return errors.New("node not exists")
}

// Ping 节点心跳
func (d *HttpDispatcher) Ping(node *model.Node) error {
	key := utils.GetNodeKey(node.Name, node.Address)
	if _, ok := d.nodes.Load(key); ok {
		d.nodes.Store(key, NodeInfo{
			node:         node,
			lastPingTime: time.Now().Unix(),
		})
		return nil
	}
	return errors.New("node not exists")
}

// HealthcheckNodes 检查节点心跳，3 分钟没心跳就注销
func (d *HttpDispatcher) HealthcheckNodes() {
	d.nodes.Range(func(_, value any) bool {
		nodeInfo := value.(NodeInfo)
		if time.Now().Unix()-nodeInfo.lastPingTime > 3*60 {
			d.UnRegister(nodeInfo.node)
		}
		return true
	})
}

// SendJob 构造执行指令并记录 run 和节点的对应关系
func (d *HttpDispatcher) SendJob(name, yamlString string, jobRunID int, triggerMode string, node *model.Node) *api.Order {
	logger.Tracef("SendJob: %v to %s@%s", name, node.Name, node.Address)
	order := &api.Order{
		Type: api.OrderExecute,
		ExecReq: api.ExecuteReq{
			Name:         name,
			PipelineFile: yamlString,
			JobRunId:     jobRunID,
			TriggerMode:  triggerMode,
		},
	}
	jobKey := utils.FormatJobToString(name, jobRunID)
	if nodes, ok := d.JobNodeMap.Load(jobKey); ok {
		d.JobNodeMap.Store(jobKey, append(nodes.([]*model.Node), node))
	} else {
		d.JobNodeMap.Store(jobKey, []*model.Node{node})
	}
	return order
}

// CancelJobWithNode 构造发给指定节点的取消指令
func (d *HttpDispatcher) CancelJobWithNode(name string, jobRunID int, node *model.Node) *api.Order {
	logger.Tracef("CancelJob: %s(%d) to %s@%s", name, jobRunID, node.Name, node.Address)
	return &api.Order{
		Type: api.OrderCancel,
		ExecReq: api.ExecuteReq{
			Name:     name,
			JobRunId: jobRunID,
		},
	}
}

func (d *HttpDispatcher) CancelJob(name string, jobRunID int) (*api.Order, *model.Node, error) {
	node, err := d.GetJobLatestNode(name, jobRunID)
	if err != nil {
		return nil, nil, fmt.Errorf("job %s(%d) not found execute node", name, jobRunID)
	}
	return d.CancelJobWithNode(name, jobRunID, node), node, nil
}

// GetJobNode 获取 run 的执行节点
func (d *HttpDispatcher) GetJobNode(name string, jobRunID int) []*model.Node {
	if nodes, ok := d.JobNodeMap.Load(utils.FormatJobToString(name, jobRunID)); ok {
		return nodes.([]*model.Node)
	}
	return nil
}

func (d *HttpDispatcher) GetJobLatestNode(name string, id int) (*model.Node, error) {
	nodes := d.GetJobNode(name, id)
	if len(nodes) == 0 {
		return nil, errors.New("job node not found")
	}
	return nodes[len(nodes)-1], nil
}

func (d *HttpDispatcher) Received(info ReceivedInfo) {
	d.receivedMap.Store(info, struct{}{})
}

func (d *HttpDispatcher) IsReceived(info ReceivedInfo) bool {
	_, ok := d.receivedMap.Load(info)
	return ok
}

func (d *HttpDispatcher) IsValidNode(n string) bool {
	_, ok := d.nodes.Load(n)
	return ok
}
