package svc

import "errors"

// ErrNoSymbols 错误：行情源已启用但没有配置交易对
var ErrNoSymbols = errors.New("feed enabled without symbols")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
