package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Script 脚本生成结果，作为 JSON 整体挂在 project.script 上（非独立实体）
type Script struct {
	Title  string      `json:"title"`
	Scenes []SceneSpec `json:"scenes"`
}

// SceneSpec 脚本中单个分镜的规格
type SceneSpec struct {
	SceneNumber int    `json:"scene_number"`
	Description string `json:"description"`
	Narration   string `json:"narration"`
	Duration    int    `json:"duration"`
}

// TotalDuration 各分镜时长之和，持久化前校验其等于请求时长
func (s Script) TotalDuration() int {
	total := 0
	for _, sc := range s.Scenes {
		total += sc.Duration
	}
	return total
}

// 实现 driver.Valuer 接口: Go Struct -> JSON String (存入数据库)
func (s Script) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// 实现 sql.Scanner 接口: JSON String -> Go Struct (从数据库读取)
func (s *Script) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
	return json.Unmarshal(bytes, s)
}
