// Package handler exposes the read-only inspection API: seat state, in-flight
// rotations and cached quotes for the monitored underlying.
package handler

import (
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"

	"rotor-api/internal/svc"
	"rotor-api/pkg/broker"
	"rotor-api/pkg/rotation"
)

type seatView struct {
	Direction        string  `json:"direction"`
	Symbol           string  `json:"symbol,omitempty"`
	Status           string  `json:"status"`
	Version          int64   `json:"version"`
	CallPrice        float64 `json:"callPrice,omitempty"`
	LastSeatReadyAt  string  `json:"lastSeatReadyAt,omitempty"`
	FrozenTradingDay string  `json:"frozenTradingDay,omitempty"`
}

type switchView struct {
	Direction  string `json:"direction"`
	Stage      string `json:"stage"`
	Trigger    string `json:"trigger"`
	OldSymbol  string `json:"oldSymbol,omitempty"`
	NextSymbol string `json:"nextSymbol,omitempty"`
	StartedAt  string `json:"startedAt"`
}

type statusResponse struct {
	Env           string       `json:"env"`
	MonitorSymbol string       `json:"monitorSymbol,omitempty"`
	MonitorPrice  *float64     `json:"monitorPrice,omitempty"`
	InSession     bool         `json:"inSession"`
	Seats         []seatView   `json:"seats"`
	Switches      []switchView `json:"switches,omitempty"`
	ServerTime    string       `json:"serverTime"`
}

// RegisterHandlers mounts the inspection routes.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{
			Method:  http.MethodGet,
			Path:    "/api/status",
			Handler: statusHandler(svcCtx),
		},
	})
}

func statusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		resp := statusResponse{
			Env:        svcCtx.Config.Env,
			InSession:  svcCtx.Calendar.InSession(now),
			ServerTime: now.UTC().Format(time.RFC3339),
		}
		if svcCtx.Engine == nil {
			httpx.OkJsonCtx(r.Context(), w, resp)
			return
		}
		monitor := svcCtx.Config.Engine.Value.MonitorSymbol
		resp.MonitorSymbol = monitor
		if q := svcCtx.Engine.LastQuote(monitor); q != nil {
			price := q.Price
			resp.MonitorPrice = &price
		}
		long, short := svcCtx.Engine.Seats()
		resp.Seats = []seatView{
			newSeatView(broker.DirectionLong, long),
			newSeatView(broker.DirectionShort, short),
		}
		machine := svcCtx.Engine.Machine()
		for _, direction := range []broker.Direction{broker.DirectionLong, broker.DirectionShort} {
			st := machine.SwitchStateSnapshot(direction)
			if st == nil {
				continue
			}
			resp.Switches = append(resp.Switches, switchView{
				Direction:  string(st.Direction),
				Stage:      string(st.Stage),
				Trigger:    string(st.Trigger),
				OldSymbol:  st.OldSymbol,
				NextSymbol: st.NextSymbol,
				StartedAt:  st.StartedAt.UTC().Format(time.RFC3339),
			})
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func newSeatView(direction broker.Direction, seat rotation.Seat) seatView {
	view := seatView{
		Direction:        string(direction),
		Symbol:           seat.Symbol,
		Status:           string(seat.Status),
		Version:          seat.Version,
		CallPrice:        seat.CallPrice,
		FrozenTradingDay: seat.FrozenTradingDay,
	}
	if !seat.LastSeatReadyAt.IsZero() {
		view.LastSeatReadyAt = seat.LastSeatReadyAt.UTC().Format(time.RFC3339)
	}
	return view
}
