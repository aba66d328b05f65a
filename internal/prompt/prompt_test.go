package prompt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/photo-moments/internal/media"
)

func TestCategoryTable(t *testing.T) {
	for _, c := range AllCategories {
		kw, ok := table[c]
		require.True(t, ok, c)
		assert.NotEmpty(t, kw.Prompt, c)
		assert.NotEmpty(t, kw.Labels, c)
	}

	_, err := loadTable([]byte("unicorn:\n  prompt: [x]\n  labels: [y]\n"))
	assert.Error(t, err)
}

func TestVocabulary(t *testing.T) {
	v := Vocabulary()
	require.NotEmpty(t, v)
	assert.True(t, slices.IsSorted(v))
	assert.Contains(t, v, "landscape")
	assert.Equal(t, len(v), len(slices.Compact(slices.Clone(v))))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Landscape  ", "landscape"},
		{"Fotky ZVÍŘAT", "fotky zvirat"},
		{"jídlo, pití & snídaně!", "jidlo piti snidane"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestInterpret(t *testing.T) {
	tests := []struct {
		name string
		text string
		want CategorySet
	}{
		{"english", "landscape photos", CategorySet{Landscape}},
		{"plural", "my dogs", CategorySet{Animal}},
		{"czech with diacritics", "Fotky krajiny na horách", CategorySet{Landscape}},
		{"czech inflection", "zvířata", CategorySet{Animal}},
		{"union of categories", "dogs on the beach and food", CategorySet{Animal, Food, Landscape}},
		{"no match", "random words", CategorySet{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Interpret(tt.text)
			require.NotNil(t, spec)
			assert.Equal(t, tt.text, spec.RawText)
			assert.ElementsMatch(t, tt.want, spec.Categories)
		})
	}
}

func TestInterpret_Blank(t *testing.T) {
	assert.Nil(t, Interpret(""))
	assert.Nil(t, Interpret(" \t\n"))
}

func TestCategorySet(t *testing.T) {
	set := NewCategorySet(Person, Animal, Person)

	assert.Equal(t, CategorySet{Animal, Person}, set)
	assert.Equal(t, "animal,person", set.Key())
	assert.True(t, set.Contains(Animal))
	assert.False(t, set.Contains(Food))
	assert.True(t, set.Intersects(Result{Person: 0.9}))
	assert.False(t, set.Intersects(Result{Food: 0.9}))
	assert.Equal(t, "", (*Spec)(nil).Key())
}

func TestCategorize(t *testing.T) {
	labels := []Label{
		{Name: "Dog", Confidence: 0.7},
		{Name: "Puppy", Confidence: 0.9},
		{Name: "cat", Confidence: 0.6},
		{Name: "Mountain", Confidence: 0.54},
		{Name: "pizza", Confidence: 0.55},
		{Name: "catalogue", Confidence: 0.99},
	}

	r := Categorize(labels, 0.55)

	assert.Equal(t, Result{Animal: 0.9, Food: 0.55}, r)
}

// fakeLabeler returns labels by URI and counts calls.
type fakeLabeler struct {
	mu     sync.Mutex
	labels map[string][]Label
	err    error
	calls  atomic.Int64
}

func (f *fakeLabeler) LabelImage(_ context.Context, uri string) ([]Label, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labels[uri], nil
}

func TestClassifier_CacheHit(t *testing.T) {
	labeler := &fakeLabeler{labels: map[string][]Label{"m/1": {{Name: "dog", Confidence: 0.8}}}}
	c := NewClassifier(labeler)

	first, err := c.Classify(context.Background(), 1, "m/1")
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), 1, "m/1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), labeler.calls.Load())
}

func TestClassifier_FailureIsCachedAsEmpty(t *testing.T) {
	labeler := &fakeLabeler{err: errors.New("model not loaded")}
	c := NewClassifier(labeler)

	r, err := c.Classify(context.Background(), 7, "m/7")
	require.NoError(t, err)
	assert.Empty(t, r)

	labeler.err = nil
	r, err = c.Classify(context.Background(), 7, "m/7")
	require.NoError(t, err)
	assert.Empty(t, r)
	assert.Equal(t, int64(1), labeler.calls.Load())
}

func TestClassifier_CancellationIsNotCached(t *testing.T) {
	labeler := &fakeLabeler{err: context.Canceled}
	c := NewClassifier(labeler)

	_, err := c.Classify(context.Background(), 3, "m/3")
	require.ErrorIs(t, err, context.Canceled)

	_, cached := c.Cached(3)
	assert.False(t, cached)
}

func TestClassifier_ConcurrentDuplicatesCollapse(t *testing.T) {
	labeler := &fakeLabeler{labels: map[string][]Label{"m/5": {{Name: "receipt", Confidence: 0.9}}}}
	c := NewClassifier(labeler)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Classify(context.Background(), 5, "m/5")
			assert.NoError(t, err)
			assert.Equal(t, Result{Document: 0.9}, r)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, labeler.calls.Load(), int64(20))
	cached, ok := c.Cached(5)
	require.True(t, ok)
	assert.Equal(t, Result{Document: 0.9}, cached)
}

type memoryPersister struct {
	mu    sync.Mutex
	saved map[int64]Result
}

func (p *memoryPersister) LoadClassification(_ context.Context, id int64) (Result, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.saved[id]
	return r, ok, nil
}

func (p *memoryPersister) SaveClassification(_ context.Context, id int64, r Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved[id] = r
	return nil
}

func TestClassifier_Persister(t *testing.T) {
	store := &memoryPersister{saved: map[int64]Result{2: {Food: 0.8}}}
	labeler := &fakeLabeler{labels: map[string][]Label{"m/1": {{Name: "face", Confidence: 0.7}}}}
	c := NewClassifier(labeler, WithPersister(store))

	r, err := c.Classify(context.Background(), 2, "m/2")
	require.NoError(t, err)
	assert.Equal(t, Result{Food: 0.8}, r)
	assert.Equal(t, int64(0), labeler.calls.Load())

	_, err = c.Classify(context.Background(), 1, "m/1")
	require.NoError(t, err)
	assert.Equal(t, Result{Person: 0.7}, store.saved[1])
}

func TestClassifier_FailureIsNotPersisted(t *testing.T) {
	store := &memoryPersister{saved: map[int64]Result{}}
	c := NewClassifier(&fakeLabeler{err: errors.New("provider 503")}, WithPersister(store))

	r, err := c.Classify(context.Background(), 4, "m/4")

	require.NoError(t, err)
	assert.Empty(t, r)
	_, stored := store.saved[4]
	assert.False(t, stored)
	_, cached := c.Cached(4)
	assert.True(t, cached)
}

// blockingLabeler holds every call until release or until its ctx ends.
type blockingLabeler struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (l *blockingLabeler) LabelImage(ctx context.Context, _ string) ([]Label, error) {
	if l.calls.Add(1) == 1 {
		close(l.entered)
	}
	select {
	case <-l.release:
		return []Label{{Name: "dog", Confidence: 0.9}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestClassifier_LeavingCallerDoesNotFailOthers(t *testing.T) {
	labeler := &blockingLabeler{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewClassifier(labeler)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Classify(ctxA, 9, "m/9")
		errA <- err
	}()
	<-labeler.entered

	type outcome struct {
		r   Result
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		r, err := c.Classify(context.Background(), 9, "m/9")
		resB <- outcome{r, err}
	}()

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)
	close(labeler.release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, Result{Animal: 0.9}, b.r)
	assert.Equal(t, int64(1), labeler.calls.Load())
}

func items(n int) []media.Item {
	out := make([]media.Item, n)
	for i := range out {
		out[i] = media.Item{ID: int64(i + 1), LocationURI: fmt.Sprintf("m/%d", i+1), CapturedAt: int64(1000 + i)}
	}
	return out
}

func TestFilter_EmptySpecIsIdentity(t *testing.T) {
	labeler := &fakeLabeler{}
	f := NewFilter(NewClassifier(labeler))
	in := items(30)

	for _, spec := range []*Spec{nil, {RawText: "xyz"}} {
		out, err := f.Apply(context.Background(), in, spec)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
	assert.Equal(t, int64(0), labeler.calls.Load())

	out, err := NewFilter(nil).Apply(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFilter_KeepsMatchingItemsInOrder(t *testing.T) {
	in := items(30)
	labels := map[string][]Label{}
	for i, it := range in {
		switch i % 3 {
		case 0:
			labels[it.LocationURI] = []Label{{Name: "dog", Confidence: 0.9}}
		case 1:
			labels[it.LocationURI] = []Label{{Name: "cat", Confidence: 0.4}}
		}
	}
	labeler := &fakeLabeler{labels: labels}
	f := NewFilter(NewClassifier(labeler))

	out, err := f.Apply(context.Background(), in, Interpret("animals"))

	require.NoError(t, err)
	require.Len(t, out, 10)
	for i, it := range out {
		assert.Equal(t, in[i*3].ID, it.ID)
	}
	assert.Equal(t, int64(30), labeler.calls.Load())
}

func TestFilter_WithoutClassifier(t *testing.T) {
	_, err := NewFilter(nil).Apply(context.Background(), items(3), Interpret("food"))
	assert.ErrorIs(t, err, ErrNoClassifier)
}

func TestFilter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFilter(NewClassifier(&fakeLabeler{err: context.Canceled}))

	_, err := f.Apply(ctx, items(5), Interpret("food"))
	assert.ErrorIs(t, err, context.Canceled)
}
