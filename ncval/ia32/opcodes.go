package ia32

import (
	cf "github.com/colorfulnotion/ncval/cpufeatures"
	"github.com/colorfulnotion/ncval/ncval/ncvaltypes"
)

var aluNames = [8]string{"add", "or", "adc", "sbb", "and", "sub", "xor", "cmp"}

var shiftNames = [8]string{"rol", "ror", "rcl", "rcr", "shl", "shr", "", "sar"}

var conditionNames = [16]string{"o", "no", "b", "ae", "e", "ne", "be", "a", "s", "ns", "p", "np", "l", "ge", "le", "g"}

// opcodeDefs lists every opcode form the ia32 table recognizes. Where forms
// overlap on the same ModRM byte the earlier definition wins.
func opcodeDefs() []*opcodeDef {
	l := &defList{}
	oneByte(l)
	twoByte(l)
	threeByte(l)
	x87(l)
	vexForms(l)
	return l.defs
}

func oneByte(l *defList) {
	for i, name := range aluNames {
		base := byte(i * 8)
		lockable := name != "cmp"
		b8 := l.rm(name, base)
		b := l.rm(name, base+1).Data16()
		if lockable {
			b8.Lock()
			b.Lock()
		}
		l.rm(name, base+2)
		l.rm(name, base+3).Data16()
		l.op(name, base+4).Imm8()
		l.op(name, base+5).ImmZ().Data16()
	}
	for _, op := range []byte{0x06, 0x07, 0x0e, 0x16, 0x17, 0x1e, 0x1f} {
		l.op("segment-push-pop", op).Forbid("segment register")
	}
	l.op("daa", 0x27)
	l.op("das", 0x2f)
	l.op("aaa", 0x37)
	l.op("aas", 0x3f)

	l.opR("inc", 0x40).Data16()
	l.opR("dec", 0x48).Data16()
	l.opR("push", 0x50).Data16()
	l.opR("pop", 0x58).Data16()
	l.op("pusha", 0x60).Data16()
	l.op("popa", 0x61).Data16()
	l.rm("arpl", 0x63).Forbid("segment register")
	l.op("push", 0x68).ImmZ().Data16()
	l.rm("imul", 0x69).ImmZ().Data16()
	l.op("push", 0x6a).Imm8()
	l.rm("imul", 0x6b).Imm8().Data16()
	for _, op := range []byte{0x6c, 0x6d, 0x6e, 0x6f} {
		l.op("ins-outs", op).Forbid("port i/o")
	}
	for cc, name := range conditionNames {
		l.op("j"+name, 0x70+byte(cc)).Branch(opRel8).Hint()
	}

	for reg, name := range aluNames {
		g8 := l.grp(name, int8(reg), 0x80).Imm8()
		g := l.grp(name, int8(reg), 0x81).ImmZ().Data16()
		gs := l.grp(name, int8(reg), 0x83).Imm8().Data16()
		if name != "cmp" {
			g8.Lock()
			g.Lock()
			gs.Lock()
		}
	}
	l.rm("test", 0x84)
	l.rm("test", 0x85).Data16()
	l.rm("xchg", 0x86).Lock()
	l.rm("xchg", 0x87).Data16().Lock()
	l.rm("mov", 0x88)
	l.rm("mov", 0x89).Data16()
	l.rm("mov", 0x8a)
	l.rm("mov", 0x8b).Data16().GS()
	l.rm("mov-sreg", 0x8c).Forbid("segment register")
	l.rm("lea", 0x8d).MemOnly().Data16()
	l.rm("mov-sreg", 0x8e).Forbid("segment register")
	l.grp("pop", 0, 0x8f).Data16()

	l.op("nop", 0x90).Data16()
	l.op("pause", 0x90).Only(ctxRep)
	for r := byte(1); r < 8; r++ {
		l.op("xchg", 0x90+r).Data16()
	}
	l.op("cwde", 0x98).Data16()
	l.op("cdq", 0x99).Data16()
	l.op("lcall", 0x9a).FarPtr().Forbid("far transfer")
	l.op("fwait", 0x9b)
	l.op("pushf", 0x9c).Data16()
	l.op("popf", 0x9d).Data16()
	l.op("sahf", 0x9e)
	l.op("lahf", 0x9f)
	l.op("mov", 0xa0).Moffs().Mem()
	l.op("mov", 0xa1).Moffs().Mem().Data16().GS()
	l.op("mov", 0xa2).Moffs().Mem()
	l.op("mov", 0xa3).Moffs().Mem().Data16()
	l.op("movs", 0xa4).Mem().Rep()
	l.op("movs", 0xa5).Mem().Rep().Data16()
	l.op("cmps", 0xa6).Mem().Rep().Repne()
	l.op("cmps", 0xa7).Mem().Rep().Repne().Data16()
	l.op("test", 0xa8).Imm8()
	l.op("test", 0xa9).ImmZ().Data16()
	l.op("stos", 0xaa).Mem().Rep()
	l.op("stos", 0xab).Mem().Rep().Data16()
	l.op("lods", 0xac).Mem().Rep()
	l.op("lods", 0xad).Mem().Rep().Data16()
	l.op("scas", 0xae).Mem().Rep().Repne()
	l.op("scas", 0xaf).Mem().Rep().Repne().Data16()
	l.opR("mov", 0xb0).Imm8()
	l.opR("mov", 0xb8).ImmZ().Data16()

	for reg, name := range shiftNames {
		if name == "" {
			continue
		}
		r := int8(reg)
		l.grp(name, r, 0xc0).Imm8()
		l.grp(name, r, 0xc1).Imm8().Data16()
		l.grp(name, r, 0xd0)
		l.grp(name, r, 0xd1).Data16()
		l.grp(name, r, 0xd2)
		l.grp(name, r, 0xd3).Data16()
	}
	l.op("ret", 0xc2).Imm16().Forbid("return")
	l.op("ret", 0xc3).Forbid("return")
	l.rm("les", 0xc4).MemOnly().Forbid("segment register").Escape(3)
	l.rm("lds", 0xc5).MemOnly().Forbid("segment register").Escape(2)
	l.grp("mov", 0, 0xc6).Imm8()
	l.grp("mov", 0, 0xc7).ImmZ().Data16()
	l.op("leave", 0xc9).Data16()
	l.op("lret", 0xca).Imm16().Forbid("far transfer")
	l.op("lret", 0xcb).Forbid("far transfer")
	l.op("int3", 0xcc).Forbid("software interrupt")
	l.op("int", 0xcd).Imm8().Forbid("software interrupt")
	l.op("into", 0xce).Forbid("software interrupt")
	l.op("iret", 0xcf).Forbid("software interrupt")
	l.op("aam", 0xd4).Imm8()
	l.op("aad", 0xd5).Imm8()
	l.op("xlat", 0xd7).Mem()

	l.op("loopne", 0xe0).Branch(opRel8)
	l.op("loope", 0xe1).Branch(opRel8)
	l.op("loop", 0xe2).Branch(opRel8)
	l.op("jecxz", 0xe3).Branch(opRel8)
	for _, op := range []byte{0xe4, 0xe5, 0xe6, 0xe7} {
		l.op("in-out", op).Imm8().Forbid("port i/o")
	}
	for _, op := range []byte{0xec, 0xed, 0xee, 0xef} {
		l.op("in-out", op).Forbid("port i/o")
	}
	l.op("call", 0xe8).Call()
	l.op("jmp", 0xe9).Branch(opRel32)
	l.op("ljmp", 0xea).FarPtr().Forbid("far transfer")
	l.op("jmp", 0xeb).Branch(opRel8)

	l.op("hlt", 0xf4)
	l.op("cmc", 0xf5)
	l.grp("test", 0, 0xf6).Imm8()
	l.grp("test", 0, 0xf7).ImmZ().Data16()
	for reg, name := range [8]string{2: "not", 3: "neg", 4: "mul", 5: "imul", 6: "div", 7: "idiv"} {
		if name == "" {
			continue
		}
		g8 := l.grp(name, int8(reg), 0xf6)
		g := l.grp(name, int8(reg), 0xf7).Data16()
		if reg == 2 || reg == 3 {
			g8.Lock()
			g.Lock()
		}
	}
	l.op("clc", 0xf8)
	l.op("stc", 0xf9)
	l.op("cli", 0xfa).Forbid("privileged")
	l.op("sti", 0xfb).Forbid("privileged")
	l.op("cld", 0xfc)
	l.op("std", 0xfd)
	l.grp("inc", 0, 0xfe).Lock()
	l.grp("dec", 1, 0xfe).Lock()
	l.grp("inc", 0, 0xff).Data16().Lock()
	l.grp("dec", 1, 0xff).Data16().Lock()
	l.grp("call", 2, 0xff).RegOnly().Indirect(ncvaltypes.IndirectCall)
	l.grp("call", 2, 0xff).MemOnly().Forbid("indirect transfer through memory")
	l.grp("lcall", 3, 0xff).Forbid("far transfer")
	l.grp("jmp", 4, 0xff).RegOnly().Indirect(ncvaltypes.IndirectJump)
	l.grp("jmp", 4, 0xff).MemOnly().Forbid("indirect transfer through memory")
	l.grp("ljmp", 5, 0xff).Forbid("far transfer")
	l.grp("push", 6, 0xff).Data16()
}

func twoByte(l *defList) {
	l.rm("system", 0x0f, 0x00).Forbid("privileged")
	l.rm("system", 0x0f, 0x01).Forbid("privileged")
	l.rm("lar", 0x0f, 0x02).Forbid("segment register")
	l.rm("lsl", 0x0f, 0x03).Forbid("segment register")
	l.op("syscall", 0x0f, 0x05).Forbid("system call")
	l.op("clts", 0x0f, 0x06).Forbid("privileged")
	l.op("sysret", 0x0f, 0x07).Forbid("system call")
	l.op("invd", 0x0f, 0x08).Forbid("privileged")
	l.op("wbinvd", 0x0f, 0x09).Forbid("privileged")
	l.op("ud2", 0x0f, 0x0b)
	l.grp("prefetch", 0, 0x0f, 0x0d).MemOnly().NeedsAny(cf.F3DNOW, cf.PRE)
	l.grp("prefetchw", 1, 0x0f, 0x0d).MemOnly().NeedsAny(cf.F3DNOW, cf.PRE)
	l.op("femms", 0x0f, 0x0e).Needs(cf.F3DNOW)

	sse := func(name string, op byte, ps, pd, ss, sd string) {
		if ps != "" {
			l.rm(name+ps, 0x0f, op).Needs(cf.SSE)
		}
		if pd != "" {
			l.rm(name+pd, 0x0f, op).Only(ctxData16).Needs(cf.SSE2)
		}
		if ss != "" {
			l.rm(name+ss, 0x0f, op).Only(ctxRep).Needs(cf.SSE)
		}
		if sd != "" {
			l.rm(name+sd, 0x0f, op).Only(ctxRepne).Needs(cf.SSE2)
		}
	}
	sse("movu", 0x10, "ps", "pd", "", "")
	sse("movu", 0x11, "ps", "pd", "", "")
	l.rm("movss", 0x0f, 0x10).Only(ctxRep).Needs(cf.SSE)
	l.rm("movss", 0x0f, 0x11).Only(ctxRep).Needs(cf.SSE)
	l.rm("movsd", 0x0f, 0x10).Only(ctxRepne).Needs(cf.SSE2)
	l.rm("movsd", 0x0f, 0x11).Only(ctxRepne).Needs(cf.SSE2)
	l.rm("movshdup", 0x0f, 0x16).Only(ctxRep).Needs(cf.SSE3)
	for reg, name := range [4]string{"prefetchnta", "prefetcht0", "prefetcht1", "prefetcht2"} {
		l.grp(name, int8(reg), 0x0f, 0x18).MemOnly().NeedsAny(cf.EMMX, cf.SSE)
	}
	l.grp("nop", 0, 0x0f, 0x1f).Data16()
	for op := byte(0x20); op <= 0x23; op++ {
		l.rm("mov-control", 0x0f, op).RegOnly().Forbid("privileged")
	}
	sse("mova", 0x28, "ps", "pd", "", "")
	sse("mova", 0x29, "ps", "pd", "", "")
	l.op("wrmsr", 0x0f, 0x30).Forbid("privileged")
	l.op("rdtsc", 0x0f, 0x31).Needs(cf.TSC)
	l.op("rdmsr", 0x0f, 0x32).Forbid("privileged")
	l.op("rdpmc", 0x0f, 0x33).Forbid("privileged")
	l.op("sysenter", 0x0f, 0x34).Forbid("system call")
	l.op("sysexit", 0x0f, 0x35).Forbid("system call")
	for cc, name := range conditionNames {
		l.rm("cmov"+name, 0x0f, 0x40+byte(cc)).Data16().Needs(cf.CMOV)
	}
	sse("xor", 0x57, "ps", "pd", "", "")
	sse("add", 0x58, "ps", "pd", "ss", "sd")
	sse("mul", 0x59, "ps", "pd", "ss", "sd")
	l.rm("movq", 0x0f, 0x6f).Needs(cf.MMX)
	l.rm("movdqa", 0x0f, 0x6f).Only(ctxData16).Needs(cf.SSE2)
	l.rm("movdqu", 0x0f, 0x6f).Only(ctxRep).Needs(cf.SSE2)
	l.op("emms", 0x0f, 0x77).Needs(cf.MMX)
	l.rm("haddpd", 0x0f, 0x7c).Only(ctxData16).Needs(cf.SSE3)
	l.rm("haddps", 0x0f, 0x7c).Only(ctxRepne).Needs(cf.SSE3)
	l.rm("movq", 0x0f, 0x7f).Needs(cf.MMX)
	l.rm("movdqa", 0x0f, 0x7f).Only(ctxData16).Needs(cf.SSE2)
	l.rm("movdqu", 0x0f, 0x7f).Only(ctxRep).Needs(cf.SSE2)
	for cc, name := range conditionNames {
		l.op("j"+name, 0x0f, 0x80+byte(cc)).Branch(opRel32).Hint()
	}
	for cc, name := range conditionNames {
		l.rm("set"+name, 0x0f, 0x90+byte(cc))
	}
	l.op("push-fs", 0x0f, 0xa0).Forbid("segment register")
	l.op("pop-fs", 0x0f, 0xa1).Forbid("segment register")
	l.op("cpuid", 0x0f, 0xa2)
	l.rm("bt", 0x0f, 0xa3).Data16()
	l.rm("shld", 0x0f, 0xa4).Imm8().Data16()
	l.rm("shld", 0x0f, 0xa5).Data16()
	l.op("push-gs", 0x0f, 0xa8).Forbid("segment register")
	l.op("pop-gs", 0x0f, 0xa9).Forbid("segment register")
	l.rm("bts", 0x0f, 0xab).Data16().Lock()
	l.rm("shrd", 0x0f, 0xac).Imm8().Data16()
	l.rm("shrd", 0x0f, 0xad).Data16()
	l.grp("fxsave", 0, 0x0f, 0xae).MemOnly().Needs(cf.FXSR)
	l.grp("fxrstor", 1, 0x0f, 0xae).MemOnly().Needs(cf.FXSR)
	l.grp("ldmxcsr", 2, 0x0f, 0xae).MemOnly().Needs(cf.SSE)
	l.grp("stmxcsr", 3, 0x0f, 0xae).MemOnly().Needs(cf.SSE)
	l.grp("lfence", 5, 0x0f, 0xae).RegOnly().Needs(cf.SSE2)
	l.grp("mfence", 6, 0x0f, 0xae).RegOnly().Needs(cf.SSE2)
	l.grp("sfence", 7, 0x0f, 0xae).RegOnly().Needs(cf.SSE)
	l.grp("clflush", 7, 0x0f, 0xae).MemOnly().Needs(cf.CLFLUSH)
	l.rm("imul", 0x0f, 0xaf).Data16()
	l.rm("cmpxchg", 0x0f, 0xb0).Lock()
	l.rm("cmpxchg", 0x0f, 0xb1).Data16().Lock()
	l.rm("lss", 0x0f, 0xb2).MemOnly().Forbid("segment register")
	l.rm("btr", 0x0f, 0xb3).Data16().Lock()
	l.rm("lfs", 0x0f, 0xb4).MemOnly().Forbid("segment register")
	l.rm("lgs", 0x0f, 0xb5).MemOnly().Forbid("segment register")
	l.rm("movzx", 0x0f, 0xb6).Data16()
	l.rm("movzx", 0x0f, 0xb7).Data16()
	l.rm("popcnt", 0x0f, 0xb8).Only(ctxRep).Needs(cf.POPCNT)
	l.grp("bt", 4, 0x0f, 0xba).Imm8().Data16()
	l.grp("bts", 5, 0x0f, 0xba).Imm8().Data16().Lock()
	l.grp("btr", 6, 0x0f, 0xba).Imm8().Data16().Lock()
	l.grp("btc", 7, 0x0f, 0xba).Imm8().Data16().Lock()
	l.rm("btc", 0x0f, 0xbb).Data16().Lock()
	l.rm("bsf", 0x0f, 0xbc).Data16()
	l.rm("bsr", 0x0f, 0xbd).Data16()
	// tzcnt and lzcnt decode as bsf/bsr on processors without them, so they
	// are allowed unconditionally.
	l.rm("tzcnt", 0x0f, 0xbc).Only(ctxRep)
	l.rm("lzcnt", 0x0f, 0xbd).Only(ctxRep)
	l.rm("movsx", 0x0f, 0xbe).Data16()
	l.rm("movsx", 0x0f, 0xbf).Data16()
	l.rm("xadd", 0x0f, 0xc0).Lock()
	l.rm("xadd", 0x0f, 0xc1).Data16().Lock()
	l.grp("cmpxchg8b", 1, 0x0f, 0xc7).MemOnly().Lock().Needs(cf.CX8)
	l.opR("bswap", 0x0f, 0xc8)
	l.rm("pxor", 0x0f, 0xef).Needs(cf.MMX)
	l.rm("pxor", 0x0f, 0xef).Only(ctxData16).Needs(cf.SSE2)
	l.rm("paddd", 0x0f, 0xfe).Needs(cf.MMX)
	l.rm("paddd", 0x0f, 0xfe).Only(ctxData16).Needs(cf.SSE2)
}

func threeByte(l *defList) {
	l.rm("pshufb", 0x0f, 0x38, 0x00).Needs(cf.SSSE3)
	l.rm("pshufb", 0x0f, 0x38, 0x00).Only(ctxData16).Needs(cf.SSSE3)
	l.rm("ptest", 0x0f, 0x38, 0x17).Only(ctxData16).Needs(cf.SSE41)
	l.rm("aesenc", 0x0f, 0x38, 0xdc).Only(ctxData16).Needs(cf.AES)
	l.rm("aesenclast", 0x0f, 0x38, 0xdd).Only(ctxData16).Needs(cf.AES)
	l.rm("movbe", 0x0f, 0x38, 0xf0).MemOnly().Needs(cf.MOVBE)
	l.rm("movbe", 0x0f, 0x38, 0xf1).MemOnly().Needs(cf.MOVBE)
	l.rm("crc32", 0x0f, 0x38, 0xf0).Only(ctxRepne).Needs(cf.SSE42)
	l.rm("crc32", 0x0f, 0x38, 0xf1).Only(ctxRepne).Needs(cf.SSE42)
	l.rm("palignr", 0x0f, 0x3a, 0x0f).Imm8().Needs(cf.SSSE3)
	l.rm("palignr", 0x0f, 0x3a, 0x0f).Imm8().Only(ctxData16).Needs(cf.SSSE3)
	l.rm("pblendw", 0x0f, 0x3a, 0x0e).Imm8().Only(ctxData16).Needs(cf.SSE41)
	l.rm("pclmulqdq", 0x0f, 0x3a, 0x44).Imm8().Only(ctxData16).Needs(cf.CLMUL)
	l.rm("pcmpistri", 0x0f, 0x3a, 0x63).Imm8().Only(ctxData16).Needs(cf.SSE42)
}

// x87 escapes. Conditional moves and the flag-setting compares additionally
// need CMOV.
func x87(l *defList) {
	for reg, name := range [4]string{"fcmovb", "fcmove", "fcmovbe", "fcmovu"} {
		l.grp(name, int8(reg), 0xda).RegOnly().Needs(cf.CMOV, cf.X87)
	}
	for reg, name := range [4]string{"fcmovnb", "fcmovne", "fcmovnbe", "fcmovnu"} {
		l.grp(name, int8(reg), 0xdb).RegOnly().Needs(cf.CMOV, cf.X87)
	}
	l.grp("fucomi", 5, 0xdb).RegOnly().Needs(cf.CMOV, cf.X87)
	l.grp("fcomi", 6, 0xdb).RegOnly().Needs(cf.CMOV, cf.X87)
	l.grp("fucomip", 5, 0xdf).RegOnly().Needs(cf.CMOV, cf.X87)
	l.grp("fcomip", 6, 0xdf).RegOnly().Needs(cf.CMOV, cf.X87)
	for op := byte(0xd8); op <= 0xdf; op++ {
		l.rm("x87", op).Needs(cf.X87)
	}
}

// vexForms lists the VEX encoded instructions. The AES and carry-less
// multiply forms need AVX on top of their legacy extension.
func vexForms(l *defList) {
	l.vex("vzeroupper", map0F, ppNone, 0x77).NoModRM().L128().Needs(cf.AVX)
	l.vex("vzeroall", map0F, ppNone, 0x77).NoModRM().L256().Needs(cf.AVX)
	l.vex("vmovups", map0F, ppNone, 0x10).Needs(cf.AVX)
	l.vex("vmovups", map0F, ppNone, 0x11).Needs(cf.AVX)
	l.vex("vmovupd", map0F, pp66, 0x10).Needs(cf.AVX)
	l.vex("vmovupd", map0F, pp66, 0x11).Needs(cf.AVX)
	l.vex("vxorps", map0F, ppNone, 0x57).Needs(cf.AVX)
	l.vex("vaddps", map0F, ppNone, 0x58).Needs(cf.AVX)
	l.vex("vmovdqa", map0F, pp66, 0x6f).Needs(cf.AVX)
	l.vex("vmovdqa", map0F, pp66, 0x7f).Needs(cf.AVX)
	l.vex("vmovdqu", map0F, ppF3, 0x6f).Needs(cf.AVX)
	l.vex("vmovdqu", map0F, ppF3, 0x7f).Needs(cf.AVX)
	l.vex("vpxor", map0F, pp66, 0xef).L128().Needs(cf.AVX)

	l.vex("vcvtph2ps", map0F38, pp66, 0x13).Needs(cf.F16C)
	l.vex("vfmadd231ps", map0F38, pp66, 0xb8).Needs(cf.FMA)
	l.vex("vaesenc", map0F38, pp66, 0xdc).L128().Needs(cf.AES, cf.AVX)
	l.vex("vaesenclast", map0F38, pp66, 0xdd).L128().Needs(cf.AES, cf.AVX)
	l.vex("vaesdec", map0F38, pp66, 0xde).L128().Needs(cf.AES, cf.AVX)
	l.vex("vaesdeclast", map0F38, pp66, 0xdf).L128().Needs(cf.AES, cf.AVX)
	l.vex("andn", map0F38, ppNone, 0xf2).L128().Needs(cf.BMI1)

	l.vex("vpclmulqdq", map0F3A, pp66, 0x44).Imm8().L128().Needs(cf.CLMUL, cf.AVX)
	l.vex("vpalignr", map0F3A, pp66, 0x0f).Imm8().L128().Needs(cf.AVX)
}
