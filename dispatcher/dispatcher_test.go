package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warden-shared/warden-engine/model"
	"github.com/warden-shared/warden-engine/transport/api"
	ass "gotest.tools/v3/assert"
)

func Test_RegisterAndDispatch(t *testing.T) {
	d := NewHttpDispatcher()

	err := d.Register(&model.Node{Name: "runner-1", Address: "10.0.0.1", Labels: []string{"hosted"}})
	ass.NilError(t, err)

	// 重复注册报错
	err = d.Register(&model.Node{Name: "runner-1", Address: "10.0.0.1", Labels: []string{"hosted"}})
	assert.Error(t, err)

	node, err := d.DispatchNode("")
	ass.NilError(t, err)
	assert.Equal(t, "runner-1", node.Name)
}

func Test_DispatchNode_RoundRobin(t *testing.T) {
	d := NewHttpDispatcher()
	ass.NilError(t, d.Register(&model.Node{Name: "a", Address: "10.0.0.1", Labels: []string{"hosted"}}))
	ass.NilError(t, d.Register(&model.Node{Name: "b", Address: "10.0.0.2", Labels: []string{"hosted"}}))

	first, err := d.DispatchNode("")
	ass.NilError(t, err)
	second, err := d.DispatchNode("")
	ass.NilError(t, err)
	third, err := d.DispatchNode("")
	ass.NilError(t, err)

	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, first.Name, third.Name)
}

func Test_DispatchNode_LabelSelection(t *testing.T) {
	d := NewHttpDispatcher()
	ass.NilError(t, d.Register(&model.Node{Name: "hosted-1", Address: "10.0.0.1", Labels: []string{"hosted"}}))
	ass.NilError(t, d.Register(&model.Node{Name: "snyk-1", Address: "10.0.0.9", Labels: []string{"self-managed", "snyk"}}))

	// 空选择器只会落到 hosted 池
	for i := 0; i < 4; i++ {
		node, err := d.DispatchNode("")
		ass.NilError(t, err)
		assert.Equal(t, "hosted-1", node.Name)
	}

	node, err := d.DispatchNode("self-managed, snyk")
	ass.NilError(t, err)
	assert.Equal(t, "snyk-1", node.Name)

	_, err = d.DispatchNode("windows")
	assert.Error(t, err)
}

func Test_DispatchNode_NoNodes(t *testing.T) {
	d := NewHttpDispatcher()
	_, err := d.DispatchNode("")
	assert.Error(t, err)
}

func Test_UnRegister(t *testing.T) {
	d := NewHttpDispatcher()
	node := &model.Node{Name: "runner-1", Address: "10.0.0.1", Labels: []string{"hosted"}}
	ass.NilError(t, d.Register(node))
	ass.NilError(t, d.UnRegister(node))

	_, err := d.DispatchNode("")
	assert.Error(t, err)

	assert.Error(t, d.UnRegister(node))
}

func Test_SendJobAndCancel(t *testing.T) {
	d := NewHttpDispatcher().(*HttpDispatcher)
	node := &model.Node{Name: "runner-1", Address: "10.0.0.1", Labels: []string{"hosted"}}
	ass.NilError(t, d.Register(node))

	order := d.SendJob("trivy-scan", "version: 1.0", 3, "schedule", node)
	assert.Equal(t, api.OrderExecute, order.Type)
	assert.Equal(t, "trivy-scan", order.ExecReq.Name)
	assert.Equal(t, 3, order.ExecReq.JobRunId)
	assert.Equal(t, "schedule", order.ExecReq.TriggerMode)

	cancelOrder, cancelNode, err := d.CancelJob("trivy-scan", 3)
	ass.NilError(t, err)
	assert.Equal(t, api.OrderCancel, cancelOrder.Type)
	assert.Equal(t, node.Name, cancelNode.Name)

	_, _, err = d.CancelJob("unknown", 1)
	assert.Error(t, err)
}

func Test_Received(t *testing.T) {
	d := NewHttpDispatcher()
	info := ReceivedInfo{OrderType: int(api.OrderExecute), Node: "runner-1@10.0.0.1", JobName: "trivy-scan"}

	assert.False(t, d.IsReceived(info))
	d.Received(info)
	assert.True(t, d.IsReceived(info))
}

func Test_IsValidNode(t *testing.T) {
	d := NewHttpDispatcher()
	ass.NilError(t, d.Register(&model.Node{Name: "runner-1", Address: "10.0.0.1"}))
	assert.True(t, d.IsValidNode("runner-1@10.0.0.1"))
	assert.False(t, d.IsValidNode("ghost@10.0.0.2"))
}
