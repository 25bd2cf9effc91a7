package cpu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/phys"
)

const (
	testTop  = 0x1000
	testL3   = 0x2000
	testL2   = 0x3000
	testL1   = 0x4000
	testPage = 0x10000

	testVAddr = 0x400000 // indices 0, 0, 2, 0
)

// newMachine builds a CPU with one 4 KiB page mapped at testVAddr.
func newMachine(t testing.TB, leafFlags uint64) (*CPU, *phys.Memory) {
	t.Helper()
	mem, err := phys.New(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	mem.Write64(testTop, testL3|bitPresent|bitWritable)
	mem.Write64(testL3, testL2|bitPresent|bitWritable)
	mem.Write64(testL2+2*8, testL1|bitPresent|bitWritable)
	mem.Write64(testL1, testPage|leafFlags)

	c := New(mem)
	c.WriteCR3(testTop)
	return c, mem
}

func Test_CPU_LoadStoreThroughTables(t *testing.T) {
	c, mem := newMachine(t, bitPresent|bitWritable)

	c.Store64(testVAddr+8, 0xdeadbeef)
	require.Equal(t, uint64(0xdeadbeef), mem.Read64(testPage+8))
	require.Equal(t, uint64(0xdeadbeef), c.Load64(testVAddr+8))

	leaf := mem.Read64(testL1)
	require.NotZero(t, leaf&bitAccessed)
	require.NotZero(t, leaf&bitDirty)

	pa, ok := c.Walk(testVAddr + 0x123)
	require.True(t, ok)
	require.Equal(t, uint64(testPage+0x123), pa)
}

func Test_CPU_CrossPageBytes(t *testing.T) {
	c, mem := newMachine(t, bitPresent|bitWritable)
	mem.Write64(testL1+8, (testPage+0x1000)|bitPresent|bitWritable)

	c.Store64(testVAddr+0xffc, 0x1122334455667788)
	require.Equal(t, uint64(0x1122334455667788), c.Load64(testVAddr+0xffc))
	require.Equal(t, byte(0x88), mem.Frame(testPage)[0xffc])
	require.Equal(t, byte(0x11), mem.Frame(testPage + 0x1000)[3])

	c.ZeroRange(testVAddr+0xff8, 16)
	require.Zero(t, c.Load64(testVAddr+0xffc))
}

func Test_CPU_HugePage(t *testing.T) {
	mem, err := phys.New(8 << 20)
	require.NoError(t, err)
	defer mem.Close()

	mem.Write64(testTop, testL3|bitPresent|bitWritable)
	mem.Write64(testL3, testL2|bitPresent|bitWritable)
	mem.Write64(testL2+1*8, 0x200000|bitPresent|bitWritable|bitHuge)

	c := New(mem)
	c.WriteCR3(testTop)
	c.Store64(0x200000+0x12340, 7)
	require.Equal(t, uint64(7), mem.Read64(0x212340))
}

func Test_CPU_NoHandlerHalts(t *testing.T) {
	c, _ := newMachine(t, 0)
	err := fault.Catch(func() { c.Load64(testVAddr) })
	require.ErrorIs(t, err, ErrNoHandler)
}

func Test_CPU_FaultIsRetried(t *testing.T) {
	c, mem := newMachine(t, 0)
	c.SetRIP(0xffffffff80001234)

	var got []Fault
	c.SetFaultHandler(func(f Fault) {
		got = append(got, f)
		mem.Write64(testL1, testPage|bitPresent|bitWritable)
	})

	c.Store64(testVAddr+16, 42)
	require.Equal(t, uint64(42), mem.Read64(testPage+16))
	require.Len(t, got, 1)
	require.Equal(t, Fault{Addr: testVAddr + 16, RIP: 0xffffffff80001234, Code: ErrWrite}, got[0])
}

func Test_CPU_UnresolvedFaultHalts(t *testing.T) {
	c, _ := newMachine(t, 0)
	calls := 0
	c.SetFaultHandler(func(Fault) { calls++ })

	err := fault.Catch(func() { c.Load64(testVAddr) })
	require.ErrorIs(t, err, ErrUnresolved)
	require.Equal(t, 1, calls)
}

func Test_CPU_WriteProtect(t *testing.T) {
	c, _ := newMachine(t, bitPresent)

	// Supervisor writes ignore read-only pages until CR0.WP is set.
	c.Store64(testVAddr, 1)

	var code uint64
	c.SetFaultHandler(func(f Fault) { code = f.Code })
	c.EnableWriteProtect()
	c.FlushTLB()
	err := fault.Catch(func() { c.Store64(testVAddr, 2) })
	require.ErrorIs(t, err, ErrUnresolved)
	require.Equal(t, ErrPresent|ErrWrite, code)
}

func Test_CPU_NoExecute(t *testing.T) {
	c, _ := newMachine(t, bitPresent|bitNoExec)

	var code uint64
	c.SetFaultHandler(func(f Fault) { code = f.Code })

	// NX bit with EFER.NXE clear is a reserved-bit violation.
	err := fault.Catch(func() { c.Load64(testVAddr) })
	require.ErrorIs(t, err, ErrUnresolved)
	require.Equal(t, ErrPresent|ErrReserved, code)

	c.EnableNX()
	require.Equal(t, uint64(0), c.Load64(testVAddr))
	err = fault.Catch(func() { c.Fetch(testVAddr) })
	require.ErrorIs(t, err, ErrUnresolved)
	require.Equal(t, ErrPresent|ErrInstr, code)
}

func Test_CPU_TLBServesStaleUntilInvlpg(t *testing.T) {
	c, mem := newMachine(t, bitPresent|bitWritable)
	mem.Write64(testPage+0x1000, 99)

	require.Zero(t, c.Load64(testVAddr))
	mem.Write64(testL1, (testPage+0x1000)|bitPresent|bitWritable)
	require.Zero(t, c.Load64(testVAddr), "cached translation")

	c.Invlpg(testVAddr)
	require.Equal(t, uint64(99), c.Load64(testVAddr))

	st := c.Stats()
	require.Positive(t, st.TLBHits)
	require.Equal(t, 1, st.Invlpgs)
}

func Test_CPU_WriteCR3KeepsGlobal(t *testing.T) {
	c, mem := newMachine(t, bitPresent|bitWritable|bitGlobal)
	require.Zero(t, c.Load64(testVAddr))

	mem.Write64(testL1, 0)
	c.WriteCR3(testTop)
	require.Zero(t, c.Load64(testVAddr), "global entry survives a CR3 reload")
}

func Test_CPU_NonCanonicalHalts(t *testing.T) {
	c, _ := newMachine(t, bitPresent)
	err := fault.Catch(func() { c.Load64(0x0000800000000000) })
	require.ErrorIs(t, err, ErrNonCanonical)
}
