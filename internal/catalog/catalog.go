// Package catalog is an in-memory store of movies and the actors cast in
// them. It is not durable: the catalog is empty whenever the service starts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrMissingField is returned when a required field is absent or empty.
	ErrMissingField = errors.New("required field missing")

	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("record not found")

	// ErrInvalid is returned when a request is well formed but cannot be
	// applied, such as a duplicate ID or an unknown gender.
	ErrInvalid = errors.New("invalid record")
)

var genders = []string{"female", "male", "other"}

type Movie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate *string `json:"release_date"`
}

type Actor struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Age     *int    `json:"age"`
	Gender  *string `json:"gender"`
	MovieID *int    `json:"movie_id"`
}

// MovieInput carries the fields supplied by a client. Nil fields are not
// supplied; on update they leave the stored value unchanged, as do empty
// strings.
type MovieInput struct {
	ID          *int    `json:"id"`
	Title       *string `json:"title"`
	ReleaseDate *string `json:"release_date"`
}

type ActorInput struct {
	ID      *int    `json:"id"`
	Name    *string `json:"name"`
	Age     *int    `json:"age"`
	Gender  *string `json:"gender"`
	MovieID *int    `json:"movie_id"`
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	movies map[int]Movie
	actors map[int]Actor

	lastMovieID int
	lastActorID int
}

func NewStore() *Store {
	return &Store{
		movies: map[int]Movie{},
		actors: map[int]Actor{},
	}
}

// Movies lists all movies ordered by ID.
func (s *Store) Movies(ctx context.Context) []Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedValues(s.movies, func(m Movie) int { return m.ID })
}

// Actors lists all actors ordered by ID.
func (s *Store) Actors(ctx context.Context) []Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedValues(s.actors, func(a Actor) int { return a.ID })
}

// CreateMovie adds a movie. A title is required; the ID is assigned unless
// supplied.
func (s *Store) CreateMovie(ctx context.Context, in MovieInput) (Movie, error) {
	if !supplied(in.Title) {
		return Movie{}, fmt.Errorf("movie title: %w", ErrMissingField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := nextID(in.ID, &s.lastMovieID, s.movies)
	if err != nil {
		return Movie{}, err
	}

	m := Movie{ID: id, Title: *in.Title}
	if supplied(in.ReleaseDate) {
		m.ReleaseDate = in.ReleaseDate
	}
	s.movies[id] = m

	return m, nil
}

// CreateActor adds an actor. A name is required; the ID is assigned unless
// supplied.
func (s *Store) CreateActor(ctx context.Context, in ActorInput) (Actor, error) {
	if !supplied(in.Name) {
		return Actor{}, fmt.Errorf("actor name: %w", ErrMissingField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateActor(in); err != nil {
		return Actor{}, err
	}

	id, err := nextID(in.ID, &s.lastActorID, s.actors)
	if err != nil {
		return Actor{}, err
	}

	a := Actor{ID: id, Name: *in.Name, Age: in.Age, MovieID: in.MovieID}
	if supplied(in.Gender) {
		a.Gender = in.Gender
	}
	s.actors[id] = a

	return a, nil
}

// UpdateMovie applies the supplied fields to the movie with the given ID.
func (s *Store) UpdateMovie(ctx context.Context, id int, in MovieInput) (Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.movies[id]
	if !ok {
		return Movie{}, fmt.Errorf("movie %d: %w", id, ErrNotFound)
	}

	if supplied(in.Title) {
		m.Title = *in.Title
	}
	if supplied(in.ReleaseDate) {
		m.ReleaseDate = in.ReleaseDate
	}
	s.movies[id] = m

	return m, nil
}

// UpdateActor applies the supplied fields to the actor with the given ID.
func (s *Store) UpdateActor(ctx context.Context, id int, in ActorInput) (Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actors[id]
	if !ok {
		return Actor{}, fmt.Errorf("actor %d: %w", id, ErrNotFound)
	}

	if err := s.validateActor(in); err != nil {
		return Actor{}, err
	}

	if supplied(in.Name) {
		a.Name = *in.Name
	}
	if in.Age != nil {
		a.Age = in.Age
	}
	if supplied(in.Gender) {
		a.Gender = in.Gender
	}
	if in.MovieID != nil {
		a.MovieID = in.MovieID
	}
	s.actors[id] = a

	return a, nil
}

// DeleteMovie removes the movie and returns it. Actors cast in the movie are
// kept, with their movie cleared.
func (s *Store) DeleteMovie(ctx context.Context, id int) (Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.movies[id]
	if !ok {
		return Movie{}, fmt.Errorf("movie %d: %w", id, ErrNotFound)
	}

	delete(s.movies, id)

	for actorID, a := range s.actors {
		if a.MovieID != nil && *a.MovieID == id {
			a.MovieID = nil
			s.actors[actorID] = a
		}
	}

	return m, nil
}

// DeleteActor removes the actor and returns it.
func (s *Store) DeleteActor(ctx context.Context, id int) (Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actors[id]
	if !ok {
		return Actor{}, fmt.Errorf("actor %d: %w", id, ErrNotFound)
	}

	delete(s.actors, id)

	return a, nil
}

// validateActor must be called with the lock held.
func (s *Store) validateActor(in ActorInput) error {
	if supplied(in.Gender) && !slices.Contains(genders, *in.Gender) {
		return fmt.Errorf("actor gender %q is not one of %v: %w", *in.Gender, genders, ErrInvalid)
	}

	if in.Age != nil && *in.Age < 0 {
		return fmt.Errorf("actor age %d: %w", *in.Age, ErrInvalid)
	}

	if in.MovieID != nil {
		if _, ok := s.movies[*in.MovieID]; !ok {
			return fmt.Errorf("actor movie %d does not exist: %w", *in.MovieID, ErrInvalid)
		}
	}

	return nil
}

func supplied(s *string) bool {
	return s != nil && *s != ""
}

func nextID[T any](requested *int, last *int, existing map[int]T) (int, error) {
	if requested != nil {
		id := *requested
		if id <= 0 {
			return 0, fmt.Errorf("id %d must be positive: %w", id, ErrInvalid)
		}
		if _, ok := existing[id]; ok {
			return 0, fmt.Errorf("id %d already exists: %w", id, ErrInvalid)
		}
		*last = max(*last, id)
		return id, nil
	}

	*last++
	for {
		if _, ok := existing[*last]; !ok {
			return *last, nil
		}
		*last++
	}
}

func sortedValues[T any](m map[int]T, id func(T) int) []T {
	values := make([]T, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}

	slices.SortFunc(values, func(a, b T) int { return id(a) - id(b) })

	return values
}
