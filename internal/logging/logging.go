/*
 * stream-share is a project to efficiently share the use of an IPTV service.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package logging provides the leveled, caller-annotated logger shared by
// every package in the gateway.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// LogLevel enumerates the severities the gateway logs at.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds the logger's runtime configuration, seeded from the
// environment at init and adjustable by the CLI layer before the server
// starts.
var Config = struct {
	DebugEnabled bool
	Level        LogLevel
	ToFile       bool
	FilePath     string
	logFile      *os.File
}{
	DebugEnabled: false,
	Level:        LevelInfo,
}

func init() {
	Config.DebugEnabled = os.Getenv("DEBUG_LOGGING") == "true"

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		Config.Level = LevelDebug
	case "info":
		Config.Level = LevelInfo
	case "warn":
		Config.Level = LevelWarn
	case "error":
		Config.Level = LevelError
	default:
		if Config.DebugEnabled {
			Config.Level = LevelDebug
		} else {
			Config.Level = LevelInfo
		}
	}

	if path := os.Getenv("LOG_FILE"); path != "" {
		Config.ToFile = true
		Config.FilePath = path

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			log.Printf("logging: could not create log directory: %v", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("logging: could not open log file: %v", err)
		} else {
			Config.logFile = f
			log.SetOutput(f)
		}
	}
}

// Close releases the log file, if one is open.
func Close() {
	if Config.logFile != nil {
		Config.logFile.Close()
	}
}

func Debug(format string, v ...interface{}) {
	if Config.DebugEnabled || Config.Level <= LevelDebug {
		logWithCaller(LevelDebug, format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if Config.Level <= LevelInfo {
		logWithCaller(LevelInfo, format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if Config.Level <= LevelWarn {
		logWithCaller(LevelWarn, format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if Config.Level <= LevelError {
		logWithCaller(LevelError, format, v...)
	}
}

func logWithCaller(level LogLevel, format string, v ...interface{}) {
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	log.Println(fmt.Sprintf("%s [%s] (%s) %s", ts, levelToString(level), caller, fmt.Sprintf(format, v...)))
}

func levelToString(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
