package utils

import (
	"github.com/zeromicro/go-zero/core/mr"
)

// ParallelMap 使用最多 workers 个 goroutine 并发执行 fn，结果顺序与输入一致。
// 输入只有一个元素或 workers <= 1 时直接在当前 goroutine 中执行。
func ParallelMap[T, R any](input []T, workers int, fn func(T) R) []R {
	result := make([]R, len(input))
	if len(input) == 0 {
		return result
	}

	if len(input) == 1 || workers <= 1 {
		for i, item := range input {
			result[i] = fn(item)
		}
		return result
	}

	// 每个下标只会被一个 worker 写入，无需加锁
	mr.ForEach(func(source chan<- int) {
		for i := range input {
			source <- i
		}
	}, func(i int) {
		result[i] = fn(input[i])
	}, mr.WithWorkers(min(workers, len(input))))

	return result
}
