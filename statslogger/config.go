// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package statslogger periodically writes the relay's statistics to the log:
// Go memory usage, the endpoint's dispatch queue depth sampled every
// StatsLogger.SamplePeriod, and every registered bucketstats value.
package statslogger

import (
	"runtime"
	"strings"
	"time"

	"github.com/NVIDIA/filerelay/bucketstats"
	"github.com/NVIDIA/filerelay/conf"
	"github.com/NVIDIA/filerelay/endpoint"
	"github.com/NVIDIA/filerelay/logger"
	"github.com/NVIDIA/filerelay/transitions"
)

type globalsStruct struct {
	collectChan       <-chan time.Time // time to sample the queue depth
	logChan           <-chan time.Time // time to log statistics
	stopChan          chan bool        // time to shutdown and go home
	doneChan          chan bool        // shutdown complete
	statsLogPeriod    time.Duration    // time between statistics logging
	statsSamplePeriod time.Duration    // time between queue depth samples
	collectTicker     *time.Ticker     // ticker for collectChan
	logTicker         *time.Ticker     // ticker for logChan
	logCount          uint64           // rounds logged since Up
}

var globals globalsStruct

func init() {
	transitions.Register("statslogger", &globals)
}

func parseConfMap(confMap conf.ConfMap) (err error) {
	globals.statsLogPeriod, err = confMap.FetchOptionValueDuration("StatsLogger", "Period")
	if nil != err {
		globals.statsLogPeriod = time.Duration(10 * time.Minute)
	}

	// statsLogPeriod must be >= 1 sec, except 0 means disabled
	if (globals.statsLogPeriod < time.Second) && (0 != globals.statsLogPeriod) {
		logger.Warnf("config variable 'StatsLogger.Period' value is non-zero and less than 1s; defaulting to '10m'")
		globals.statsLogPeriod = time.Duration(10 * time.Minute)
	}

	globals.statsSamplePeriod, err = confMap.FetchOptionValueDuration("StatsLogger", "SamplePeriod")
	if (nil != err) || (0 == globals.statsSamplePeriod) {
		globals.statsSamplePeriod = time.Second
	}

	err = nil
	return
}

func start() {
	if 0 == globals.statsLogPeriod {
		return
	}

	globals.collectTicker = time.NewTicker(globals.statsSamplePeriod)
	globals.collectChan = globals.collectTicker.C

	globals.logTicker = time.NewTicker(globals.statsLogPeriod)
	globals.logChan = globals.logTicker.C

	globals.stopChan = make(chan bool)
	globals.doneChan = make(chan bool)

	go statsLogger()
}

func stop() {
	if 0 == globals.statsLogPeriod {
		return
	}

	globals.stopChan <- true
	_ = <-globals.doneChan

	globals.collectTicker.Stop()
	globals.logTicker.Stop()
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	err = parseConfMap(confMap)
	if nil != err {
		return
	}

	globals.logCount = 0

	start()

	return
}

func (dummy *globalsStruct) SignaledStart(confMap conf.ConfMap) (err error) {
	err = nil
	return
}

// SignaledFinish restarts the logger only if either period changed.
func (dummy *globalsStruct) SignaledFinish(confMap conf.ConfMap) (err error) {
	oldLogPeriod := globals.statsLogPeriod
	oldSamplePeriod := globals.statsSamplePeriod

	err = parseConfMap(confMap)
	if nil != err {
		return
	}
	if (globals.statsLogPeriod == oldLogPeriod) && (globals.statsSamplePeriod == oldSamplePeriod) {
		return
	}

	logger.Infof("statslogger log period changing from %v to %v", oldLogPeriod, globals.statsLogPeriod)

	newLogPeriod := globals.statsLogPeriod
	globals.statsLogPeriod = oldLogPeriod
	stop()
	globals.statsLogPeriod = newLogPeriod
	start()

	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	stop()

	err = nil
	return
}

// statsLogger samples the endpoint's queue depth every collectChan tick and logs
// a round of statistics every logChan tick, plus a final round on stop.
func statsLogger() {
	var (
		queueDepthStats SimpleStats
		oldMemStats     runtime.MemStats
		newMemStats     runtime.MemStats
	)

	queueDepthStats.Clear()
	queueDepthStats.Sample(int64(endpoint.Status().QueueDepth))

	// memstats "stops the world"
	runtime.ReadMemStats(&oldMemStats)

	logStats("total", &queueDepthStats, &oldMemStats)

mainloop:
	for stopRequest := false; !stopRequest; {
		select {
		case <-globals.stopChan:
			// print final stats and then exit
			stopRequest = true

		case <-globals.collectChan:
			queueDepthStats.Sample(int64(endpoint.Status().QueueDepth))
			continue mainloop

		case <-globals.logChan:
			// fall through to do the logging
		}

		runtime.ReadMemStats(&newMemStats)
		queueDepthStats.Sample(int64(endpoint.Status().QueueDepth))

		logStats("total", &queueDepthStats, &newMemStats)

		oldMemStats.Sys = newMemStats.Sys - oldMemStats.Sys
		oldMemStats.TotalAlloc = newMemStats.TotalAlloc - oldMemStats.TotalAlloc
		oldMemStats.HeapInuse = newMemStats.HeapInuse - oldMemStats.HeapInuse
		oldMemStats.HeapIdle = newMemStats.HeapIdle - oldMemStats.HeapIdle
		oldMemStats.HeapReleased = newMemStats.HeapReleased - oldMemStats.HeapReleased
		oldMemStats.NumGC = newMemStats.NumGC - oldMemStats.NumGC
		oldMemStats.PauseTotalNs = newMemStats.PauseTotalNs - oldMemStats.PauseTotalNs
		logStats("delta", nil, &oldMemStats)

		oldMemStats = newMemStats
		queueDepthStats.Clear()
	}

	globals.doneChan <- true
}

// logStats writes one round. statsType is "total" or "delta"; bucketstats
// values are only logged with totals.
func logStats(statsType string, queueDepthStats *SimpleStats, memStats *runtime.MemStats) {
	globals.logCount++

	if nil != queueDepthStats {
		logger.Infof("Endpoint QueueDepth: min=%d mean=%d max=%d samples=%d",
			queueDepthStats.Min(), queueDepthStats.Mean(), queueDepthStats.Max(), queueDepthStats.Samples())
	}

	logger.Infof("Memory in Kibyte (%s): Sys=%d HeapInuse=%d HeapIdle=%d HeapReleased=%d Cumulative TotalAlloc=%d",
		statsType,
		int64(memStats.Sys)/1024, int64(memStats.HeapInuse)/1024, int64(memStats.HeapIdle)/1024,
		int64(memStats.HeapReleased)/1024, int64(memStats.TotalAlloc)/1024)
	logger.Infof("GC Stats (%s): NumGC=%d PauseTotalMsec=%d",
		statsType, memStats.NumGC, memStats.PauseTotalNs/1000000)

	if "total" != statsType {
		return
	}

	for _, line := range strings.Split(strings.TrimRight(bucketstats.SprintStats("*", "*"), "\n"), "\n") {
		if "" != line {
			logger.Infof("Stats (%s): %s", statsType, line)
		}
	}
}
