// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package httpserver serves the relay's operator interface: configuration,
// statistics, endpoint status, and halter triggers. It is disabled when
// HTTPServer.TCPPort is 0 or absent.
package httpserver

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/transitions"
)

type globalsStruct struct {
	sync.Mutex
	active        bool
	ipAddr        string
	tcpPort       uint16
	ipAddrTCPPort string
	netListener   net.Listener
	wg            sync.WaitGroup
	confMap       conf.ConfMap
}

var globals globalsStruct

func init() {
	transitions.Register("httpserver", &globals)
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	globals.confMap = confMap

	globals.tcpPort, err = confMap.FetchOptionValueUint16("HTTPServer", "TCPPort")
	if nil != err {
		globals.tcpPort = 0
	}
	if 0 == globals.tcpPort {
		logger.Infof("httpserver disabled (HTTPServer.TCPPort unset or 0)")
		err = nil
		return
	}

	globals.ipAddr, err = confMap.FetchOptionValueString("HTTPServer", "IPAddr")
	if nil != err {
		globals.ipAddr = "localhost"
	}

	globals.ipAddrTCPPort = net.JoinHostPort(globals.ipAddr, strconv.Itoa(int(globals.tcpPort)))

	globals.netListener, err = net.Listen("tcp", globals.ipAddrTCPPort)
	if nil != err {
		err = fmt.Errorf("net.Listen(\"tcp\", \"%s\") failed: %v", globals.ipAddrTCPPort, err)
		return
	}

	globals.active = true

	globals.wg.Add(1)
	go serveHTTP()

	err = nil
	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	globals.Lock()
	globals.active = false
	globals.Unlock()

	err = nil
	return
}

func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	var (
		tcpPort uint16
	)

	tcpPort, err = confMap.FetchOptionValueUint16("HTTPServer", "TCPPort")
	if nil != err {
		tcpPort = 0
	}
	if tcpPort != globals.tcpPort {
		err = fmt.Errorf("confMap change not allowed to alter [HTTPServer]TCPPort")
		return
	}

	globals.Lock()
	globals.confMap = confMap
	globals.active = true
	globals.Unlock()

	err = nil
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	if nil != globals.netListener {
		_ = globals.netListener.Close()
		globals.wg.Wait()
		globals.netListener = nil
	}

	globals.active = false

	err = nil
	return
}
