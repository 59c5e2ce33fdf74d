package main

// Генератор тестовых данных: сеть тропинок в виде сетки и синтетические треки
// (JSON экспорт и GPX) внутри зоны. С флагом -watch подписывается на события
// конвейера в MQTT и печатает их.
//
// go run scripts/sample-data.go -out data -tracks 50
// go run scripts/sample-data.go -watch -broker tcp://localhost:1883 -zone canigo

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tkrajina/gpxgo/gpx"
)

// Config параметры генерации
type Config struct {
	OutDir     string
	Tracks     int
	GridSize   int
	StepDeg    float64
	OriginLon  float64
	OriginLat  float64
	Activity   string
	RandomSeed int64
	GPXShare   float64
}

// walker состояние симулируемого маршрута по узлам сетки
type walker struct {
	i, j int
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.OutDir, "out", "data", "Output root (network/ and input/ are created inside)")
	flag.IntVar(&cfg.Tracks, "tracks", 20, "Number of tracks to generate")
	flag.IntVar(&cfg.GridSize, "grid", 30, "Network grid size (nodes per side)")
	flag.Float64Var(&cfg.StepDeg, "step", 0.002, "Grid step in degrees")
	flag.Float64Var(&cfg.OriginLon, "lon", 2.40, "Grid origin longitude")
	flag.Float64Var(&cfg.OriginLat, "lat", 42.45, "Grid origin latitude")
	flag.StringVar(&cfg.Activity, "activity", "Senderisme", "Activity type of generated tracks")
	flag.Int64Var(&cfg.RandomSeed, "seed", time.Now().UnixNano(), "Random seed")
	flag.Float64Var(&cfg.GPXShare, "gpx", 0.3, "Share of tracks written as GPX")

	watch := flag.Bool("watch", false, "Subscribe to pipeline events instead of generating data")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL for -watch")
	prefix := flag.String("prefix", "trails", "MQTT topic prefix for -watch")
	zone := flag.String("zone", "+", "Zone to watch")
	flag.Parse()

	if *watch {
		watchEvents(*broker, *prefix, *zone)
		return
	}

	if err := generate(cfg); err != nil {
		log.Fatalf("Failed to generate sample data: %v", err)
	}
}

func generate(cfg Config) error {
	rng := rand.New(rand.NewSource(cfg.RandomSeed))

	networkDir := filepath.Join(cfg.OutDir, "network")
	inputDir := filepath.Join(cfg.OutDir, "input")
	for _, dir := range []string{networkDir, inputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	node := func(i, j int) orb.Point {
		return orb.Point{cfg.OriginLon + float64(j)*cfg.StepDeg, cfg.OriginLat + float64(i)*cfg.StepDeg}
	}
	nodeID := func(i, j int) int64 { return int64(i*cfg.GridSize + j + 1) }

	fc := geojson.NewFeatureCollection()
	for i := 0; i < cfg.GridSize; i++ {
		for j := 0; j < cfg.GridSize; j++ {
			if j+1 < cfg.GridSize {
				f := geojson.NewFeature(orb.LineString{node(i, j), node(i, j+1)})
				f.Properties["u"], f.Properties["v"] = nodeID(i, j), nodeID(i, j+1)
				fc.Append(f)
			}
			if i+1 < cfg.GridSize {
				f := geojson.NewFeature(orb.LineString{node(i, j), node(i+1, j)})
				f.Properties["u"], f.Properties["v"] = nodeID(i, j), nodeID(i+1, j)
				fc.Append(f)
			}
		}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(networkDir, "edges.geojson"), data, 0o644); err != nil {
		return err
	}

	for n := 0; n < cfg.Tracks; n++ {
		points := simulate(cfg, rng, node)
		id := fmt.Sprintf("%06d", 100000+n)
		date := time.Date(2014+rng.Intn(10), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 7+rng.Intn(5), 0, 0, 0, time.UTC)
		shiftTimes(points, date)

		if rng.Float64() < cfg.GPXShare {
			err = writeGPX(filepath.Join(inputDir, id+".gpx"), id, cfg.Activity, date, points)
		} else {
			err = writeJSON(filepath.Join(inputDir, id+".json"), id, cfg.Activity, date, points)
		}
		if err != nil {
			return err
		}
	}

	log.Printf("Generated %d edges and %d tracks in %s (bounds %.4f,%.4f - %.4f,%.4f)",
		len(fc.Features), cfg.Tracks, cfg.OutDir,
		cfg.OriginLon, cfg.OriginLat,
		cfg.OriginLon+float64(cfg.GridSize-1)*cfg.StepDeg, cfg.OriginLat+float64(cfg.GridSize-1)*cfg.StepDeg)
	return nil
}

// simulate идет по сетке случайным маршрутом без разворотов, ~4 км/ч, точка каждые 15 с
func simulate(cfg Config, rng *rand.Rand, node func(i, j int) orb.Point) []gpx.GPXPoint {
	w := walker{i: rng.Intn(cfg.GridSize), j: rng.Intn(cfg.GridSize)}
	legs := 8 + rng.Intn(12)
	speed := 0.9 + rng.Float64()*0.8 // м/с
	const interval = 15.0

	metersPerDeg := 111_320 * math.Cos(cfg.OriginLat*math.Pi/180)
	var points []gpx.GPXPoint
	elevation := 900 + rng.Float64()*600
	elapsed := 0.0
	prevDir := -1

	for leg := 0; leg < legs; leg++ {
		dirs := []int{0, 1, 2, 3}
		rng.Shuffle(len(dirs), func(a, b int) { dirs[a], dirs[b] = dirs[b], dirs[a] })
		next := w
		dir := -1
		for _, d := range dirs {
			if prevDir >= 0 && d == (prevDir+2)%4 {
				continue
			}
			ni, nj := w.i, w.j
			switch d {
			case 0:
				nj++
			case 1:
				ni++
			case 2:
				nj--
			case 3:
				ni--
			}
			if ni >= 0 && nj >= 0 && ni < cfg.GridSize && nj < cfg.GridSize {
				next, dir = walker{ni, nj}, d
				break
			}
		}
		if dir < 0 {
			break
		}

		from, to := node(w.i, w.j), node(next.i, next.j)
		steps := int(math.Max(1, cfg.StepDeg*metersPerDeg/(speed*interval)))
		slope := (rng.Float64() - 0.4) * 0.15
		for s := 0; s < steps; s++ {
			f := float64(s) / float64(steps)
			lon := from[0] + (to[0]-from[0])*f + (rng.Float64()-0.5)*0.00008
			lat := from[1] + (to[1]-from[1])*f + (rng.Float64()-0.5)*0.00008
			elevation += slope * speed * interval
			p := gpx.GPXPoint{
				Point:     gpx.Point{Latitude: lat, Longitude: lon, Elevation: *gpx.NewNullableFloat64(math.Round(elevation*10) / 10)},
				Timestamp: time.Unix(int64(elapsed), 0).UTC(),
			}
			points = append(points, p)
			elapsed += interval
		}
		w, prevDir = next, dir
	}
	return points
}

func shiftTimes(points []gpx.GPXPoint, start time.Time) {
	for i := range points {
		points[i].Timestamp = start.Add(time.Duration(points[i].Timestamp.Unix()) * time.Second)
	}
}

func writeJSON(path, id, activity string, date time.Time, points []gpx.GPXPoint) error {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Longitude, p.Latitude, p.Elevation.Value(), float64(p.Timestamp.UnixMilli())}
	}
	data, err := json.Marshal(map[string]interface{}{
		"activity":    map[string]string{"name": activity},
		"coordinates": coords,
		"title":       "Sample track " + id,
		"user":        "sample",
		"url":         "https://example.org/tracks/" + id,
		"difficulty":  []string{"Fàcil", "Moderat", "Difícil"}[len(points)%3],
		"date-up":     date.Format("2006-01-02"),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeGPX(path, id, activity string, date time.Time, points []gpx.GPXPoint) error {
	g := &gpx.GPX{
		Name:       "Sample track " + id,
		AuthorName: "sample",
		Time:       &date,
		Tracks: []gpx.GPXTrack{{
			Name:     "Sample track " + id,
			Type:     activity,
			Segments: []gpx.GPXTrackSegment{{Points: points}},
		}},
	}
	data, err := g.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// watchEvents печатает события {prefix}/{zone}/tracks и {prefix}/{zone}/partitions
func watchEvents(broker, prefix, zone string) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("sample-watch-%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", token.Error())
	}
	defer client.Disconnect(250)

	topic := fmt.Sprintf("%s/%s/#", prefix, zone)
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Printf("%s %s %s\n", time.Now().Format(time.RFC3339), msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		log.Fatalf("Failed to subscribe: %v", token.Error())
	}
	log.Printf("Watching %s on %s", topic, broker)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
