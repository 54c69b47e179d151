package domain

// Window is an inclusive range of calendar days.
type Window struct {
	Start Date
	End   Date
}

// Days lists every day in the window.
func (w Window) Days() []Date { return DateRange(w.Start, w.End) }

// FillWindow returns the gap-fill range for one incident's observations. It
// starts at the first observation and ends at the disaster's end date, or at
// the latest observation for Copernicus and ongoing disasters, which have no
// trustworthy end date.
func FillWindow(obs []Observation, d Disaster) (Window, error) {
	_, end, err := d.Window()
	if err != nil {
		return Window{}, err
	}
	first, last, ok := DateBounds(obs)
	if !ok {
		return Window{}, nil
	}
	if d.IsOngoing || d.Source() == SourceCopernicus {
		end = last
	}
	return Window{Start: first, End: end}, nil
}

// fillState is the accumulator of the gap-fill fold.
type fillState struct {
	lastKnown []Observation
	out       []Observation
}

// FillGaps walks the window day by day and emits one incident's Daily
// Perimeter Sequence. Observed days are emitted as-is and become the last
// known perimeter. Unobserved days repeat the last known perimeter with only
// the date changed. Days before the first observation emit nothing, as do
// observations outside the window.
func FillGaps(obs []Observation, w Window) []Observation {
	byDay := make(map[Date][]Observation)
	for _, o := range obs {
		byDay[o.Date] = append(byDay[o.Date], o)
	}
	_, latest, _ := DateBounds(obs)

	state := fillState{}
	for _, day := range w.Days() {
		state = fillStep(state, day, byDay[day])
	}
	for i := range state.out {
		state.out[i].LatestPerimeterDate = latest
	}
	return state.out
}

func fillStep(s fillState, day Date, observed []Observation) fillState {
	if len(observed) > 0 {
		s.out = append(s.out, observed...)
		s.lastKnown = observed
		return s
	}
	for _, prev := range s.lastKnown {
		filled := prev
		filled.Date = day
		filled.Filled = true
		s.out = append(s.out, filled)
	}
	return s
}

// FillIncidents gap-fills every incident of a disaster and concatenates the
// sequences, incidents in name order.
func FillIncidents(obs []Observation, d Disaster) ([]Observation, error) {
	names, groups := GroupByIncident(obs)
	var out []Observation
	for _, name := range names {
		w, err := FillWindow(groups[name], d)
		if err != nil {
			return nil, err
		}
		out = append(out, FillGaps(groups[name], w)...)
	}
	return out, nil
}
