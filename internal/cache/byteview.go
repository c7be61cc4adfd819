package cache

import (
	"slices"
	"unsafe"
)

// ByteView 是缓存值的只读视图
type ByteView struct {
	data []byte
}

// NewByteView 复制 data 并返回视图，调用方之后修改 data 不影响视图
func NewByteView(data []byte) ByteView {
	if data == nil {
		data = []byte{}
	}
	return ByteView{data: slices.Clone(data)}
}

// Len 返回字节长度，同时满足 store.Value 接口
func (b ByteView) Len() int {
	return len(b.data)
}

// ByteSlice 返回数据副本
func (b ByteView) ByteSlice() []byte {
	return slices.Clone(b.data)
}

// String 零拷贝地以字符串形式返回数据
func (b ByteView) String() string {
	if len(b.data) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b.data), len(b.data))
}

// Equal 比较两个视图内容是否相同
func (b ByteView) Equal(other ByteView) bool {
	return slices.Equal(b.data, other.data)
}
