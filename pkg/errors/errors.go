package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrSlotTaken 数据库排他约束拒绝写入：同一房间或教师的时段已被并发占用
var ErrSlotTaken = errors.New("时段已被其他排课占用")
