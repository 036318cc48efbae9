// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 表示记录不存在，上层不需要感知 gorm 的错误类型。
var ErrNotFound = errors.New("record not found")

// ErrDuplicate 表示违反唯一约束。
var ErrDuplicate = errors.New("duplicate record")

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
