// Copyright 2026 ACT-1-The-Prophecy
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import (
	"context"
)

// echoHandler 调试用：原样返回 payload
type echoHandler struct{}

// NewEchoHandler 创建 echo 处理器（dev）
func NewEchoHandler() Handler { return echoHandler{} }

func (echoHandler) Topic() string { return "echo" }

func (echoHandler) Handle(ctx context.Context, payload string) (interface{}, error) {
	return payload, nil
}

// reverseHandler 调试用：按 rune 反转 payload
type reverseHandler struct{}

// NewReverseHandler 创建 text_reverse 处理器（dev）
func NewReverseHandler() Handler { return reverseHandler{} }

func (reverseHandler) Topic() string { return "text_reverse" }

func (reverseHandler) Handle(ctx context.Context, payload string) (interface{}, error) {
	runes := []rune(payload)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), nil
}

// Builtin 按名创建内置处理器；未知名返回 nil
func Builtin(name string) Handler {
	switch name {
	case "echo":
		return NewEchoHandler()
	case "text_reverse":
		return NewReverseHandler()
	}
	return nil
}
