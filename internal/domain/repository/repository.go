// Package repository 定义数据访问层接口
package repository

// TxKey 事务在 context 中的键
type TxKey struct{}
