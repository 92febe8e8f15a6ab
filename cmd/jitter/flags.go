package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the remote server for client commands.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	CACert     string
	Insecure   bool
}

type ServeFlags struct {
	ConfigPath string
	Listen     string
}

type ReplayFlags struct {
	ConfigPath  string
	File        string
	ProducerFPS float64
	ConsumerFPS float64
	MinProgress float64
	MinRadius   float64
	Quiet       bool
}

type NotifyFlags struct {
	APIFlags
	Category  string
	ID        int64
	Phase     string
	Progress  float64
	Radius    float64
	Clockwise bool
	Speed     float64
}

type BatchFlags struct {
	APIFlags
	Category    string
	MinProgress float64
	MinRadius   float64
}

type ConsumptionFlags struct {
	APIFlags
	Category string
	Enabled  bool
}
