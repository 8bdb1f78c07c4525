package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type exchangeStat struct {
	requests int64
	rows     int64
}

var (
	errorsTotal   int64
	warnsTotal    int64
	rowsStored    int64
	scrapeRuns    int64
	apiRequests   int64
	archiveWrites int64
	exchanges     sync.Map // map[string]*exchangeStat
)

func recordWarn(component string) {
	atomic.AddInt64(&warnsTotal, 1)
	_ = component
}

func recordError(component string) {
	atomic.AddInt64(&errorsTotal, 1)
	_ = component
}

// IncrementFetch records one upstream request against the named exchange and
// the number of funding rows it yielded.
func IncrementFetch(exchange string, rows int) {
	v, _ := exchanges.LoadOrStore(exchange, &exchangeStat{})
	es := v.(*exchangeStat)
	atomic.AddInt64(&es.requests, 1)
	atomic.AddInt64(&es.rows, int64(rows))
}

func IncrementStored(rows int) {
	atomic.AddInt64(&rowsStored, int64(rows))
}

func IncrementScrapeRun() {
	atomic.AddInt64(&scrapeRuns, 1)
}

func IncrementAPIRequest() {
	atomic.AddInt64(&apiRequests, 1)
}

func IncrementArchiveWrite() {
	atomic.AddInt64(&archiveWrites, 1)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and scrape statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	exchangeData := map[string]map[string]int64{}
	exchanges.Range(func(k, v any) bool {
		name := k.(string)
		es := v.(*exchangeStat)
		exchangeData[name] = map[string]int64{
			"requests": atomic.LoadInt64(&es.requests),
			"rows":     atomic.LoadInt64(&es.rows),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	rowsFetched := int64(0)
	for _, stats := range exchangeData {
		rowsFetched += stats["rows"]
	}

	fields := Fields{
		"errors":         atomic.LoadInt64(&errorsTotal),
		"warns":          atomic.LoadInt64(&warnsTotal),
		"rows_fetched":   rowsFetched,
		"rows_stored":    atomic.LoadInt64(&rowsStored),
		"scrape_runs":    atomic.LoadInt64(&scrapeRuns),
		"api_requests":   atomic.LoadInt64(&apiRequests),
		"archive_writes": atomic.LoadInt64(&archiveWrites),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memStats.Used) / 1024 / 1024,
		"disk_mb":        int64(diskStats.Used) / 1024 / 1024,
		"exchanges":      exchangeData,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("FF-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("FF-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("FF-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("FF-Errors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-Warns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-RowsFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(rowsFetched))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-RowsStored"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rows_stored"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-ScrapeRuns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["scrape_runs"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-APIRequests"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["api_requests"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-ArchiveWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["archive_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("FF-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range exchangeData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FF-ExchangeRequests"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Exchange"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["requests"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("FF-ExchangeRows"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Exchange"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["rows"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
