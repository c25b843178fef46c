package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
)

const (
	idempotencyHeader = "idempotency-key"
	scenarioMethod    = "scenario"
)

type loadMode string

const (
	modeCreate           loadMode = "create"
	modeCreateUpdate     loadMode = "create-update"
	modeCreateVoid       loadMode = "create-void"
	modeCreateUpdateVoid loadMode = "create-update-void"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	vehicles      []string
	oilID         string
	oilLitres     decimal.Decimal
	partID        string
	partQuantity  decimal.Decimal
	serviceFee    decimal.Decimal
	odometerStart int64
	replayRate    int
	allowStockout bool
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	Stockouts         int64                   `json:"stockouts"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// unexpectedFailures — провалы сценариев без учёта допустимой нехватки склада.
func (r report) unexpectedFailures(allowStockout bool) int64 {
	if allowStockout {
		return r.FailedScenarios - r.Stockouts
	}
	return r.FailedScenarios
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func (s *methodStats) report() methodReport {
	codesCopy := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codesCopy[code] = count
	}
	return methodReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if code == codes.OK {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code.String()]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}
	return stats.report(), true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenario := c.methods[scenarioMethod]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.Stockouts = scenario.codes[codes.FailedPrecondition.String()]
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		result.Methods[name] = stats.report()
	}
	return result
}

func parseConfig(args []string, output io.Writer) (config, error) {
	cfg := config{}
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		modeValue     string
		vehiclesValue string
		litresValue   string
		partQtyValue  string
		feeValue      string
	)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 2, "number of concurrent workers; each worker owns one vehicle")
	fs.IntVar(&cfg.connections, "connections", 2, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-update | create-void | create-update-void")
	fs.StringVar(&vehiclesValue, "vehicles", "veh-1,veh-2", "comma-separated vehicle IDs")
	fs.StringVar(&cfg.oilID, "oil", "oil-5w30", "oil catalog item ID")
	fs.StringVar(&litresValue, "litres", "4.5", "oil litres per order")
	fs.StringVar(&cfg.partID, "part", "", "optional part catalog item ID")
	fs.StringVar(&partQtyValue, "part-qty", "1", "part quantity per order")
	fs.StringVar(&feeValue, "service-fee", "150", "service fee per order")
	fs.Int64Var(&cfg.odometerStart, "odometer-start", 1_000_000, "odometer of the first scenario; must not be lower than vehicle odometers")
	fs.IntVar(&cfg.replayRate, "replay-rate", 0, "percent of scenarios that resend CreateOrder with the same idempotency key (0..100)")
	fs.BoolVar(&cfg.allowStockout, "allow-stockout", true, "do not treat insufficient stock as a failure")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.oilLitres, err = parsePositiveDecimal("litres", litresValue); err != nil {
		return cfg, err
	}
	if cfg.partQuantity, err = parsePositiveDecimal("part-qty", partQtyValue); err != nil {
		return cfg, err
	}
	if cfg.serviceFee, err = decimal.NewFromString(strings.TrimSpace(feeValue)); err != nil || cfg.serviceFee.IsNegative() {
		return cfg, errors.New("service-fee must be a non-negative decimal")
	}
	cfg.vehicles = splitList(vehiclesValue)

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case len(cfg.vehicles) == 0:
		return cfg, errors.New("at least one vehicle is required")
	case cfg.concurrency > len(cfg.vehicles):
		return cfg, fmt.Errorf("concurrency %d exceeds vehicle count %d: odometer readings of a shared vehicle would race", cfg.concurrency, len(cfg.vehicles))
	case strings.TrimSpace(cfg.oilID) == "":
		return cfg, errors.New("oil is required")
	case cfg.odometerStart < 0:
		return cfg, errors.New("odometer-start must be >= 0")
	case cfg.replayRate < 0 || cfg.replayRate > 100:
		return cfg, errors.New("replay-rate must be between 0 and 100")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateUpdate, modeCreateVoid, modeCreateUpdateVoid:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func parsePositiveDecimal(name, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !value.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%s must be a positive decimal", name)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail("invalid config: %v", err)
	}

	result, err := run(context.Background(), cfg, os.Stdout)
	if err != nil {
		fail("load test failed: %v", err)
	}
	if failures := result.unexpectedFailures(cfg.allowStockout); failures > 0 {
		fail("%d scenarios failed", failures)
	}
}

func run(ctx context.Context, cfg config, stdout io.Writer) (report, error) {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]shiftlabv1.ServiceOrderServiceClient, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for i := 0; i < cfg.connections; i++ {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return report{}, fmt.Errorf("create grpc client connection: %w", err)
		}
		conns = append(conns, conn)
		clients = append(clients, shiftlabv1.NewServiceOrderServiceClient(conn))
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		w := worker{
			client:  clients[workerID%len(clients)],
			cfg:     cfg,
			vehicle: cfg.vehicles[workerID],
			runID:   runID,
			col:     col,
		}
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = w.scenario(ctx, index)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	printReport(stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

// worker выполняет сценарии последовательно на своём автомобиле,
// поэтому показания одометра в его заказах только растут.
type worker struct {
	client  shiftlabv1.ServiceOrderServiceClient
	cfg     config
	vehicle string
	runID   string
	col     *collector
}

func (w worker) orderInput(index int, withParts bool) shiftlabv1.OrderInput {
	in := shiftlabv1.OrderInput{
		VehicleID:         w.vehicle,
		OilID:             w.cfg.oilID,
		OilLitres:         w.cfg.oilLitres,
		ServiceFee:        w.cfg.serviceFee,
		OdometerAtService: w.cfg.odometerStart + int64(index),
		ServiceDate:       time.Now().AddDate(0, 0, -1).Format(time.DateOnly),
		Notes:             "load " + w.runID,
	}
	if withParts && w.cfg.partID != "" {
		in.Parts = []shiftlabv1.PartInput{{PartID: w.cfg.partID, Quantity: w.cfg.partQuantity}}
	}
	return in
}

func (w worker) scenario(ctx context.Context, index int) (err error) {
	started := time.Now()
	defer func() {
		w.col.record(scenarioMethod, time.Since(started), grpcCode(err))
	}()

	createKey := fmt.Sprintf("lt-create-%s-%d", w.runID, index)
	req := &shiftlabv1.CreateOrderRequest{Order: w.orderInput(index, true)}
	created, err := w.createOrder(ctx, req, createKey)
	if err != nil {
		return err
	}
	order := created.Order
	if order == nil || order.ID == "" {
		return status.Error(codes.Internal, "create response returned empty order id")
	}

	if shouldSample(index, w.cfg.replayRate) {
		replayed, err := w.createOrder(ctx, req, createKey)
		if err != nil {
			return err
		}
		if replayed.Order == nil || replayed.Order.ID != order.ID {
			return status.Errorf(codes.Internal, "idempotent replay returned a different order, want %s", order.ID)
		}
	}

	if w.cfg.mode == modeCreateUpdate || w.cfg.mode == modeCreateUpdateVoid {
		updated, err := w.updateOrder(ctx, &shiftlabv1.UpdateOrderRequest{
			OrderID:         order.ID,
			ExpectedVersion: order.Version,
			Order:           w.orderInput(index, false),
		})
		if err != nil {
			return err
		}
		order = updated.Order
	}

	if w.cfg.mode == modeCreateVoid || w.cfg.mode == modeCreateUpdateVoid {
		if err := w.voidOrder(ctx, &shiftlabv1.VoidOrderRequest{
			OrderID:         order.ID,
			ExpectedVersion: order.Version,
			Reason:          "load-void",
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w worker) createOrder(ctx context.Context, req *shiftlabv1.CreateOrderRequest, key string) (*shiftlabv1.CreateOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)

	start := time.Now()
	resp, err := w.client.CreateOrder(ctx, req)
	w.col.record("CreateOrder", time.Since(start), grpcCode(err))
	return resp, err
}

func (w worker) updateOrder(ctx context.Context, req *shiftlabv1.UpdateOrderRequest) (*shiftlabv1.UpdateOrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := w.client.UpdateOrder(ctx, req)
	w.col.record("UpdateOrder", time.Since(start), grpcCode(err))
	if err == nil && (resp == nil || resp.Order == nil) {
		return nil, status.Error(codes.Internal, "update response returned no order")
	}
	return resp, err
}

func (w worker) voidOrder(ctx context.Context, req *shiftlabv1.VoidOrderRequest) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.timeout)
	defer cancel()

	start := time.Now()
	_, err := w.client.VoidOrder(ctx, req)
	w.col.record("VoidOrder", time.Since(start), grpcCode(err))
	return err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldSample(index, rate int) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 100 {
		return true
	}
	return index%100 < rate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(out, "Load test summary")
	_, _ = fmt.Fprintf(out, "mode=%s run=%s total=%d success=%d failed=%d stockouts=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.Stockouts,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(out, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		_, _ = fmt.Fprintf(out, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
