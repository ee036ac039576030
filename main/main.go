package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/rawbytedev/scopewire"
)

type reading struct {
	Sensor  uuid.UUID
	Label   string
	Samples []int16
	Levels  []float64
	Flags   []bool `scope:"1"`
	Next    *reading
}

func main() {
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()
	f, err := os.Create("mem.prof")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	runtime.MemProfileRate = 1

	z := &reading{
		Sensor:  uuid.Must(uuid.NewV4()),
		Label:   "azerty",
		Samples: []int16{100, 250, 300},
		Levels:  []float64{100.5, 165.63, 153.5},
		Flags:   []bool{true, false},
		Next:    &reading{Label: "tail", Samples: []int16{-1}},
	}
	src, err := scopewire.Reflect(z)
	if err != nil {
		log.Fatal(err)
	}
	for range 10000 {
		data, err := scopewire.Marshal(src, scopewire.Options{})
		if err != nil {
			log.Fatal(err)
		}
		res := &reading{}
		dst, err := scopewire.Reflect(res)
		if err != nil {
			log.Fatal(err)
		}
		if err := scopewire.Unmarshal(data, dst, scopewire.Options{}); err != nil {
			log.Fatal(err)
		}
	}
	pprof.WriteHeapProfile(f)
	time.Sleep(5 * time.Minute)
}
