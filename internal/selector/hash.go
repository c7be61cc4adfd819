package selector

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"math/rand/v2"

	"github.com/spaolacci/murmur3"
)

// PointFunc 把 key 映射为环上的原始位置，结果再对环大小取模。
type PointFunc func(key string) uint32

// HashSHA1 取 SHA-1 摘要的前 20 位（即前五个十六进制字符）
func HashSHA1(key string) uint32 {
	sum := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint32(sum[:4]) >> 12
}

// HashMurmur3 使用 murmur3 计算 32 位哈希，分布更均匀、速度更快
func HashMurmur3(key string) uint32 {
	return murmur3.Sum32WithSeed([]byte(key), 0)
}

// keyStream 返回由 key 决定的伪随机序列。
// 每次调用都新建生成器，不读写任何进程级随机状态，并发调用互不影响。
func keyStream(key string) *rand.Rand {
	sum := md5.Sum([]byte(key))
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[:8]),
		binary.BigEndian.Uint64(sum[8:]),
	))
}
